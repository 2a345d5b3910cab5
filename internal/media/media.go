// Package media is the facade over the media engine: routers, transports,
// producers and consumers are created here from structured parameters.
// Packet relay (RTP/SRTP) never surfaces through this boundary.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNoAvailablePorts    = errors.New("no available rtc ports")
	ErrRouterClosed        = errors.New("router closed")
	ErrTransportConnected  = errors.New("transport already connected")
	ErrInvalidDTLSParams   = errors.New("invalid dtls parameters")
	ErrInvalidKind         = errors.New("invalid media kind")
	ErrUnsupportedCodec    = errors.New("unsupported codec")
	ErrNoSuchProducer      = errors.New("no such producer")
	ErrIncompatibleRTPCaps = errors.New("incompatible rtp capabilities")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindAudio || k == KindVideo }

// CodecCapability describes one codec a router can route.
type CodecCapability struct {
	Kind                 Kind               `json:"kind"`
	MimeType             string             `json:"mimeType"`
	PreferredPayloadType webrtc.PayloadType `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32             `json:"clockRate"`
	Channels             uint16             `json:"channels,omitempty"`
	Parameters           map[string]any     `json:"parameters,omitempty"`
	RTCPFeedback         []RTCPFeedback     `json:"rtcpFeedback,omitempty"`
}

type RTCPFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RTPCapabilities is the capability descriptor of a router or receiver.
type RTPCapabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

// CodecParameters is a negotiated codec inside RTPParameters.
type CodecParameters struct {
	MimeType     string             `json:"mimeType"`
	PayloadType  webrtc.PayloadType `json:"payloadType"`
	ClockRate    uint32             `json:"clockRate"`
	Channels     uint16             `json:"channels,omitempty"`
	Parameters   map[string]any     `json:"parameters,omitempty"`
	RTCPFeedback []RTCPFeedback     `json:"rtcpFeedback,omitempty"`
}

type RTPEncoding struct {
	SSRC       uint32 `json:"ssrc,omitempty"`
	RID        string `json:"rid,omitempty"`
	MaxBitrate uint32 `json:"maxBitrate,omitempty"`
}

// RTPParameters describe one sent or received media stream.
type RTPParameters struct {
	MID       string            `json:"mid,omitempty"`
	Codecs    []CodecParameters `json:"codecs"`
	Encodings []RTPEncoding     `json:"encodings,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Port       uint16 `json:"port"`
	Protocol   string `json:"protocol"`
	Type       string `json:"type"`
}

type DTLSParameters struct {
	Role         string                   `json:"role"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

// TransportParams is everything a client needs to open the network path.
type TransportParams struct {
	ID             string               `json:"id"`
	ICEParameters  webrtc.ICEParameters `json:"iceParameters"`
	ICECandidates  []ICECandidate       `json:"iceCandidates"`
	DTLSParameters DTLSParameters       `json:"dtlsParameters"`
}

// Engine is the entry point of the media engine.
type Engine interface {
	CreateRouter(ctx context.Context, codecs []CodecCapability) (Router, error)
}

// Router is the per-room routing scope; every transport, producer and
// consumer belongs to exactly one router.
type Router interface {
	ID() string
	RTPCapabilities() RTPCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	Close()
}

type Transport interface {
	ID() string
	Params() TransportParams
	Connect(ctx context.Context, dtls DTLSParameters) error
	Produce(ctx context.Context, kind Kind, rtp RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities) (Consumer, error)
}

type Producer interface {
	ID() string
	Kind() Kind
	RTPParameters() RTPParameters
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() RTPParameters
}

// DefaultCodecs mirrors the audio/video codec set the service negotiates
// out of the box: opus for audio, VP8 for video.
func DefaultCodecs() []CodecCapability {
	return []CodecCapability{
		{
			Kind:      KindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      KindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			RTCPFeedback: []RTCPFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
	}
}
