package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dterekhov/roomcast/internal/media"
)

const (
	methodJoin                 = "join"
	methodExistingProducers    = "existingProducers"
	methodQueryRTPCapabilities = "queryRtpCapabilities"
	methodCreateTransport      = "createTransport"
	methodConnectTransport     = "connectTransport"
	methodProduce              = "produce"
	methodConsume              = "consume"

	methodNewProducer = "newProducer"
)

var (
	// The exact reply text for an unrecognized method is wire contract.
	errUnknownRequest  = errors.New("Unknown request")
	errBadPayload      = errors.New("bad payload")
	errNoSuchTransport = errors.New("no such transport")
)

// request is correlated with its response by the client-chosen id; the
// substrate itself carries no ack channel.
type request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type response struct {
	ID    int64  `json:"id"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// notification is fire-and-forget: no id, never answered.
type notification struct {
	Method string `json:"method"`
	Data   any    `json:"data"`
}

// handleRequest produces exactly one reply per request. Any failure,
// including a handler panic, surfaces as an error reply for this request
// only and never terminates the connection.
func (ctl *Controller) handleRequest(ctx context.Context, s *session, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(s.peer.ID)).Msg("bad request json")
		return
	}

	result, err := ctl.dispatch(ctx, s, &req)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("method", req.Method).Str("peer", string(s.peer.ID)).Msg("request failed")
		ctl.reply(s, response{ID: req.ID, Error: err.Error()})
		return
	}
	ctl.reply(s, response{ID: req.ID, Data: result})
}

func (ctl *Controller) dispatch(ctx context.Context, s *session, req *request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("module", "signal").Str("method", req.Method).Msg("recovered in handler")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	switch req.Method {
	case methodJoin:
		return ctl.join(s)
	case methodExistingProducers:
		return ctl.existingProducers(s)
	case methodQueryRTPCapabilities:
		return ctl.queryRTPCapabilities(s)
	case methodCreateTransport:
		return ctl.createTransport(ctx, s)
	case methodConnectTransport:
		return ctl.connectTransport(ctx, s, req.Data)
	case methodProduce:
		return ctl.produce(ctx, s, req.Data)
	case methodConsume:
		return ctl.consume(ctx, s, req.Data)
	default:
		return nil, errUnknownRequest
	}
}

func (ctl *Controller) reply(s *session, resp response) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("reply marshal")
		return
	}
	if err := s.sig.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(s.peer.ID)).Msg("reply dropped")
	}
}

func (ctl *Controller) join(s *session) (any, error) {
	return struct {
		Message string `json:"message"`
	}{fmt.Sprintf("Joined room %s", s.roomID)}, nil
}

func (ctl *Controller) existingProducers(s *session) (any, error) {
	return s.room.Producers(), nil
}

func (ctl *Controller) queryRTPCapabilities(s *session) (any, error) {
	return s.room.Router().RTPCapabilities(), nil
}

func (ctl *Controller) createTransport(ctx context.Context, s *session) (any, error) {
	tr, err := s.room.Router().CreateTransport(ctx)
	if err != nil {
		return nil, err
	}
	s.room.AddTransport(tr)
	return tr.Params(), nil
}

func (ctl *Controller) connectTransport(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	var p struct {
		TransportID    string               `json:"transportId"`
		DTLSParameters media.DTLSParameters `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	tr, ok := s.room.Transport(p.TransportID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSuchTransport, p.TransportID)
	}
	if err := tr.Connect(ctx, p.DTLSParameters); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (ctl *Controller) produce(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	var p struct {
		TransportID   string              `json:"transportId"`
		Kind          media.Kind          `json:"kind"`
		RTPParameters media.RTPParameters `json:"rtpParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	tr, ok := s.room.Transport(p.TransportID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSuchTransport, p.TransportID)
	}
	producer, err := tr.Produce(ctx, p.Kind, p.RTPParameters)
	if err != nil {
		return nil, err
	}

	// The producer must be registered before anyone hears about it, so an
	// existingProducers query racing the notification cannot miss it.
	s.room.AddProducer(producer)
	ctl.notifyNewProducer(s, producer.ID())

	return struct {
		ID string `json:"id"`
	}{producer.ID()}, nil
}

func (ctl *Controller) notifyNewProducer(s *session, producerID string) {
	b, err := json.Marshal(notification{
		Method: methodNewProducer,
		Data: struct {
			ProducerID string `json:"producerId"`
		}{producerID},
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("newProducer marshal")
		return
	}
	res := s.room.Broadcast(s.sid, b)
	log.Info().Str("module", "signal").Str("producer", producerID).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("newProducer broadcast")
}

func (ctl *Controller) consume(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	var p struct {
		TransportID     string                `json:"transportId"`
		ProducerID      string                `json:"producerId"`
		RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	tr, ok := s.room.Transport(p.TransportID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSuchTransport, p.TransportID)
	}
	consumer, err := tr.Consume(ctx, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		return nil, err
	}
	s.room.AddConsumer(consumer)

	return struct {
		ID            string              `json:"id"`
		ProducerID    string              `json:"producerId"`
		Kind          media.Kind          `json:"kind"`
		RTPParameters media.RTPParameters `json:"rtpParameters"`
	}{consumer.ID(), consumer.ProducerID(), consumer.Kind(), consumer.RTPParameters()}, nil
}
