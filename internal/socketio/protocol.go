package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Engine.IO (EIO=4) and Socket.IO framing, client side. A websocket text
// frame carries one engine packet; engine message packets carry one socket
// packet.

type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

type socketPacketType byte

const (
	socketConnect      socketPacketType = '0'
	socketConnectError socketPacketType = '4'
	socketEvent        socketPacketType = '2'
	socketAck          socketPacketType = '3'
)

type engineOpenPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int64  `json:"maxPayload"`
}

func parseEngineOpen(msg string) (engineOpenPayload, error) {
	if msg == "" || enginePacketType(msg[0]) != engineOpen {
		return engineOpenPayload{}, errors.New("not an open packet")
	}
	var p engineOpenPayload
	if err := json.Unmarshal([]byte(msg[1:]), &p); err != nil {
		return engineOpenPayload{}, err
	}
	if p.SID == "" {
		return engineOpenPayload{}, errors.New("missing sid")
	}
	return p, nil
}

func parseOptionalNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

func parseOptionalIDPrefix(s string) (id *int, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

type eventPacket struct {
	Namespace string
	ID        *int
	Event     string
	Args      []json.RawMessage
}

func parseEventPacket(payload string) (eventPacket, error) {
	if payload == "" {
		return eventPacket{}, errors.New("empty payload")
	}
	if payload[0] != byte(socketEvent) {
		return eventPacket{}, errors.New("not an event packet")
	}

	ns, rest := parseOptionalNamespace(payload[1:])
	id, rest := parseOptionalIDPrefix(rest)
	if !strings.HasPrefix(rest, "[") {
		return eventPacket{}, errors.New("invalid event payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return eventPacket{}, err
	}
	if len(arr) == 0 {
		return eventPacket{}, errors.New("missing event name")
	}
	var eventName string
	if err := json.Unmarshal(arr[0], &eventName); err != nil {
		return eventPacket{}, errors.New("invalid event name")
	}

	return eventPacket{Namespace: ns, ID: id, Event: eventName, Args: arr[1:]}, nil
}

type ackPacket struct {
	Namespace string
	ID        int
	Args      []json.RawMessage
}

func parseAckPacket(payload string) (ackPacket, error) {
	if payload == "" {
		return ackPacket{}, errors.New("empty payload")
	}
	if payload[0] != byte(socketAck) {
		return ackPacket{}, errors.New("not an ack packet")
	}

	ns, rest := parseOptionalNamespace(payload[1:])
	id, rest := parseOptionalIDPrefix(rest)
	if id == nil {
		return ackPacket{}, errors.New("missing ack id")
	}
	if !strings.HasPrefix(rest, "[") {
		return ackPacket{}, errors.New("invalid ack payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return ackPacket{}, err
	}
	return ackPacket{Namespace: ns, ID: *id, Args: arr}, nil
}

func buildEventPacket(namespace string, id *int, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketEvent))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	if id != nil {
		b.WriteString(strconv.Itoa(*id))
	}
	b.Write(data)
	return b.String(), nil
}

// buildConnectPacket carries the auth object the server authenticates the
// socket with.
func buildConnectPacket(namespace string, auth any) (string, error) {
	data, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketConnect))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String(), nil
}

func buildAckPacket(namespace string, id int, args ...any) (string, error) {
	if args == nil {
		args = make([]any, 0)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketAck))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.WriteString(strconv.Itoa(id))
	b.Write(data)
	return b.String(), nil
}
