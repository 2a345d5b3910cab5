package media

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	iceChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

	// Host candidate, UDP, component 1 (RFC 8445 §5.1.2.1).
	hostCandidatePriority uint32 = 126<<24 | 65535<<8 | 255
)

type Options struct {
	MinPort     uint16
	MaxPort     uint16
	AnnouncedIP string
}

type engine struct {
	opts         Options
	fingerprints []webrtc.DTLSFingerprint

	mu   sync.Mutex
	used map[uint16]struct{}
	next uint16
}

// NewEngine builds the in-process engine: one DTLS identity shared by all
// transports and a UDP port pool in [MinPort, MaxPort].
func NewEngine(opts Options) (Engine, error) {
	if opts.MinPort == 0 || opts.MaxPort < opts.MinPort {
		return nil, fmt.Errorf("bad rtc port range %d-%d", opts.MinPort, opts.MaxPort)
	}
	if opts.AnnouncedIP == "" {
		opts.AnnouncedIP = "127.0.0.1"
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dtls key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate dtls certificate: %w", err)
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, fmt.Errorf("dtls fingerprints: %w", err)
	}

	return &engine{
		opts:         opts,
		fingerprints: fps,
		used:         make(map[uint16]struct{}),
		next:         opts.MinPort,
	}, nil
}

func (e *engine) CreateRouter(ctx context.Context, codecs []CodecCapability) (Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := RTPCapabilities{Codecs: make([]CodecCapability, len(codecs))}
	copy(caps.Codecs, codecs)

	// Dynamic payload types start at 100, as routers conventionally assign.
	pt := webrtc.PayloadType(100)
	for i := range caps.Codecs {
		if caps.Codecs[i].PreferredPayloadType == 0 {
			caps.Codecs[i].PreferredPayloadType = pt
			pt++
		}
	}

	r := &router{
		id:        uuid.NewString(),
		eng:       e,
		caps:      caps,
		producers: make(map[string]*producer),
	}
	log.Debug().Str("module", "media").Str("router", r.id).Int("codecs", len(caps.Codecs)).Msg("router created")
	return r, nil
}

func (e *engine) allocPort() (uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	span := int(e.opts.MaxPort-e.opts.MinPort) + 1
	for i := 0; i < span; i++ {
		p := e.next
		if e.next == e.opts.MaxPort {
			e.next = e.opts.MinPort
		} else {
			e.next++
		}
		if _, busy := e.used[p]; !busy {
			e.used[p] = struct{}{}
			return p, nil
		}
	}
	return 0, ErrNoAvailablePorts
}

func (e *engine) freePorts(ports []uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range ports {
		delete(e.used, p)
	}
}

type router struct {
	id   string
	eng  *engine
	caps RTPCapabilities

	mu        sync.Mutex
	closed    bool
	ports     []uint16
	producers map[string]*producer
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() RTPCapabilities { return r.caps }

func (r *router) CreateTransport(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRouterClosed
	}
	r.mu.Unlock()

	port, err := r.eng.allocPort()
	if err != nil {
		return nil, err
	}
	ufrag, err := randutil.GenerateCryptoRandomString(16, iceChars)
	if err != nil {
		return nil, fmt.Errorf("generate ice ufrag: %w", err)
	}
	pwd, err := randutil.GenerateCryptoRandomString(32, iceChars)
	if err != nil {
		return nil, fmt.Errorf("generate ice pwd: %w", err)
	}

	t := &transport{
		id:     uuid.NewString(),
		router: r,
		params: TransportParams{
			ICEParameters: webrtc.ICEParameters{
				UsernameFragment: ufrag,
				Password:         pwd,
				ICELite:          true,
			},
			ICECandidates: []ICECandidate{{
				Foundation: "udpcandidate",
				Priority:   hostCandidatePriority,
				IP:         r.eng.opts.AnnouncedIP,
				Port:       port,
				Protocol:   "udp",
				Type:       "host",
			}},
			DTLSParameters: DTLSParameters{
				Role:         "auto",
				Fingerprints: r.eng.fingerprints,
			},
		},
	}
	t.params.ID = t.id

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.eng.freePorts([]uint16{port})
		return nil, ErrRouterClosed
	}
	r.ports = append(r.ports, port)
	r.mu.Unlock()

	log.Debug().Str("module", "media").Str("router", r.id).Str("transport", t.id).Uint16("port", port).Msg("transport created")
	return t, nil
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ports := r.ports
	r.ports = nil
	r.producers = make(map[string]*producer)
	r.mu.Unlock()

	r.eng.freePorts(ports)
	log.Debug().Str("module", "media").Str("router", r.id).Msg("router closed")
}

func (r *router) registerProducer(p *producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	r.producers[p.id] = p
	return nil
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

// capFor finds the router capability matching a negotiated codec.
func (r *router) capFor(mimeType string, clockRate uint32, channels uint16) (CodecCapability, bool) {
	for _, c := range r.caps.Codecs {
		if !strings.EqualFold(c.MimeType, mimeType) || c.ClockRate != clockRate {
			continue
		}
		if c.Channels != 0 && channels != 0 && c.Channels != channels {
			continue
		}
		return c, true
	}
	return CodecCapability{}, false
}

type transport struct {
	id     string
	router *router
	params TransportParams

	mu        sync.Mutex
	connected bool
}

func (t *transport) ID() string { return t.id }

func (t *transport) Params() TransportParams { return t.params }

func (t *transport) Connect(ctx context.Context, dtls DTLSParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(dtls.Fingerprints) == 0 {
		return ErrInvalidDTLSParams
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return ErrTransportConnected
	}
	t.connected = true
	log.Debug().Str("module", "media").Str("transport", t.id).Str("role", dtls.Role).Msg("transport connected")
	return nil
}

func (t *transport) Produce(ctx context.Context, kind Kind, rtp RTPParameters) (Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if len(rtp.Codecs) == 0 {
		return nil, fmt.Errorf("%w: no codecs offered", ErrUnsupportedCodec)
	}
	for _, c := range rtp.Codecs {
		capab, ok := t.router.capFor(c.MimeType, c.ClockRate, c.Channels)
		if !ok || capab.Kind != kind {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, c.MimeType)
		}
	}

	p := &producer{
		id:   uuid.NewString(),
		kind: kind,
		rtp:  rtp,
	}
	if err := t.router.registerProducer(p); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "media").Str("transport", t.id).Str("producer", p.id).Str("kind", string(kind)).Msg("producer created")
	return p, nil
}

func (t *transport) Consume(ctx context.Context, producerID string, caps RTPCapabilities) (Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchProducer, producerID)
	}

	src := p.rtp.Codecs[0]
	var matched *CodecCapability
	for i, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, src.MimeType) && c.ClockRate == src.ClockRate {
			matched = &caps.Codecs[i]
			break
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: producer %s (%s)", ErrIncompatibleRTPCaps, producerID, src.MimeType)
	}

	pt := matched.PreferredPayloadType
	if pt == 0 {
		pt = src.PayloadType
	}
	c := &consumer{
		id:         uuid.NewString(),
		producerID: p.id,
		kind:       p.kind,
		rtp: RTPParameters{
			Codecs: []CodecParameters{{
				MimeType:     src.MimeType,
				PayloadType:  pt,
				ClockRate:    src.ClockRate,
				Channels:     src.Channels,
				Parameters:   src.Parameters,
				RTCPFeedback: src.RTCPFeedback,
			}},
			Encodings: []RTPEncoding{{SSRC: ssrcGen.Uint32()}},
		},
	}
	log.Debug().Str("module", "media").Str("transport", t.id).Str("consumer", c.id).Str("producer", p.id).Msg("consumer created")
	return c, nil
}

var ssrcGen = randutil.NewMathRandomGenerator()

type producer struct {
	id   string
	kind Kind
	rtp  RTPParameters
}

func (p *producer) ID() string                   { return p.id }
func (p *producer) Kind() Kind                   { return p.kind }
func (p *producer) RTPParameters() RTPParameters { return p.rtp }

type consumer struct {
	id         string
	producerID string
	kind       Kind
	rtp        RTPParameters
}

func (c *consumer) ID() string                   { return c.id }
func (c *consumer) ProducerID() string           { return c.producerID }
func (c *consumer) Kind() Kind                   { return c.kind }
func (c *consumer) RTPParameters() RTPParameters { return c.rtp }
