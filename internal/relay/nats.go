package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "medchat.user."

// envelope wraps a frame with the id of the instance that published it.
type envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// NatsRelay fans per-user frames out to every instance through NATS
// subjects of the form medchat.user.<hex userId>.
type NatsRelay struct {
	conn   *nats.Conn
	log    *log.Logger
	origin string
	sub    *nats.Subscription
}

func NewNatsRelay(logger *log.Logger, url string) (*NatsRelay, error) {
	nc, err := nats.Connect(url,
		nats.Name("medchat"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("nats: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Printf("nats: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Printf("nats: connected to %s", nc.ConnectedUrl())

	return &NatsRelay{
		conn:   nc,
		log:    logger,
		origin: uuid.NewString(),
	}, nil
}

// subject hex encodes the user id so it is always a single subject token.
func subject(userId string) string {
	return subjectPrefix + hex.EncodeToString([]byte(userId))
}

func userFromSubject(subj string) (string, bool) {
	token, ok := strings.CutPrefix(subj, subjectPrefix)
	if !ok || token == "" {
		return "", false
	}

	userId, err := hex.DecodeString(token)
	if err != nil {
		return "", false
	}

	return string(userId), true
}

func encode(origin string, frame []byte) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Frame: frame})
}

func decode(data []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

func (r *NatsRelay) Publish(userId string, frame []byte) error {
	data, err := encode(r.origin, frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	return r.conn.Publish(subject(userId), data)
}

// Subscribe delivers frames published by other instances to deliver. Frames
// this instance published are skipped.
func (r *NatsRelay) Subscribe(deliver func(userId string, frame []byte)) error {
	sub, err := r.conn.Subscribe(subjectPrefix+"*", r.handler(deliver))
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	r.sub = sub
	return nil
}

func (r *NatsRelay) handler(deliver func(userId string, frame []byte)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		userId, ok := userFromSubject(msg.Subject)
		if !ok {
			return
		}

		env, err := decode(msg.Data)
		if err != nil {
			r.log.Printf("relay: decode frame: %v", err)
			return
		}
		if env.Origin == r.origin {
			return
		}

		deliver(userId, env.Frame)
	}
}

// Close drains the subscription and the connection.
func (r *NatsRelay) Close() error {
	if r.sub != nil {
		if err := r.sub.Drain(); err != nil {
			r.log.Printf("relay: drain subscription: %v", err)
		}
	}

	return r.conn.Drain()
}
