package types

import "encoding/json"

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection, in both directions.
// Ack is an optional client correlation string; commands carrying one are answered with an "ack" event.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Event is an outbound event, it is wired as a WebsocketMessage with the JSON-encoded Data.
type Event struct {
	Name string
	Data interface{}
}

func NewEvent(name string, data interface{}) *Event {
	return &Event{Name: name, Data: data}
}

func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	m := WebsocketMessage{
		Event: e.Name,
		Data:  data,
	}
	return json.Marshal(m)
}

// Ack answers a command. Id is the durable id of a created entity, Data carries query results.
type Ack struct {
	Ack     string      `json:"ack"`
	Success bool        `json:"success"`
	Id      string      `json:"id,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func AckOk(id string, data interface{}) *Ack {
	return &Ack{Success: true, Id: id, Data: data}
}

func AckError(err error) *Ack {
	return &Ack{Success: false, Error: err.Error()}
}
