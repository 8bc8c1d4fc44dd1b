package chatlog

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/robocare/pkg/kv"
)

// Journal persists the terminal messages of sessions to a kv.Store.
//
// Layout:
//
//	session/<id>/msg/<%020d message id>  msgpack(Message)
//
// Resource handles are process-local and are not persisted.
type Journal struct {
	store kv.Store
}

// NewJournal returns a journal over store.
func NewJournal(store kv.Store) *Journal {
	return &Journal{store: store}
}

func sessionPrefix(session string) kv.Key {
	return kv.Key{"session", session, "msg"}
}

func messageKey(session string, id ID) kv.Key {
	return kv.Key{"session", session, "msg", fmt.Sprintf("%020d", uint64(id))}
}

// Save replaces the stored transcript of session with the terminal
// messages in msgs. Pending placeholders are skipped.
func (j *Journal) Save(ctx context.Context, session string, msgs []Message) error {
	entries := make([]kv.Entry, 0, len(msgs))
	for _, m := range msgs {
		if m.Pending {
			continue
		}
		data, err := msgpack.Marshal(m)
		if err != nil {
			return fmt.Errorf("chatlog: encode message %d: %w", m.ID, err)
		}
		entries = append(entries, kv.Entry{Key: messageKey(session, m.ID), Value: data})
	}
	if err := j.store.Replace(ctx, sessionPrefix(session), entries); err != nil {
		return fmt.Errorf("chatlog: save session %s: %w", session, err)
	}
	return nil
}

// Load returns the stored transcript of session in id order. An unknown
// session yields an empty slice.
func (j *Journal) Load(ctx context.Context, session string) ([]Message, error) {
	var msgs []Message
	for e, err := range j.store.Scan(ctx, sessionPrefix(session)) {
		if err != nil {
			return nil, fmt.Errorf("chatlog: load session %s: %w", session, err)
		}
		var m Message
		if err := msgpack.Unmarshal(e.Value, &m); err != nil {
			return nil, fmt.Errorf("chatlog: decode %s: %w", e.Key, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Sessions lists the ids of stored sessions in key order.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	for e, err := range j.store.Scan(ctx, kv.Key{"session"}) {
		if err != nil {
			return nil, fmt.Errorf("chatlog: list sessions: %w", err)
		}
		if len(e.Key) < 2 {
			continue
		}
		if id := e.Key[1]; len(ids) == 0 || ids[len(ids)-1] != id {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes the stored transcript of session.
func (j *Journal) Delete(ctx context.Context, session string) error {
	return j.store.Replace(ctx, sessionPrefix(session), nil)
}

const (
	kindText  = "text"
	kindImage = "image"
)

// messageMsgpack is the stored form of Message.
type messageMsgpack struct {
	ID        uint64 `msgpack:"id"`
	Sender    string `msgpack:"sender"`
	Kind      string `msgpack:"kind"`
	Text      string `msgpack:"text,omitempty"`
	ImageMIME string `msgpack:"image_mime,omitempty"`
	ImageName string `msgpack:"image_name,omitempty"`
	Language  string `msgpack:"lang,omitempty"`
	CreatedAt int64  `msgpack:"created_at"`
}

// EncodeMsgpack implements msgpack.CustomEncoder for Message.
func (m Message) EncodeMsgpack(enc *msgpack.Encoder) error {
	out := messageMsgpack{
		ID:        uint64(m.ID),
		Sender:    m.Sender.String(),
		Language:  m.Language,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
	switch c := m.Content.(type) {
	case Text:
		out.Kind = kindText
		out.Text = string(c)
	case Image:
		out.Kind = kindImage
		out.ImageMIME = c.MIME
		out.ImageName = c.Name
	default:
		return fmt.Errorf("chatlog: unsupported content %T", m.Content)
	}
	return enc.Encode(out)
}

// DecodeMsgpack implements msgpack.CustomDecoder for Message.
func (m *Message) DecodeMsgpack(dec *msgpack.Decoder) error {
	var in messageMsgpack
	if err := dec.Decode(&in); err != nil {
		return err
	}
	sender, err := ParseSender(in.Sender)
	if err != nil {
		return err
	}
	var c Content
	switch in.Kind {
	case kindText:
		c = Text(in.Text)
	case kindImage:
		c = Image{MIME: in.ImageMIME, Name: in.ImageName}
	default:
		return fmt.Errorf("chatlog: unknown content kind %q", in.Kind)
	}
	*m = Message{
		ID:        ID(in.ID),
		Sender:    sender,
		Content:   c,
		Language:  in.Language,
		CreatedAt: time.UnixMilli(in.CreatedAt),
	}
	return nil
}
