package relay

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/interviewmate/stt-relay/internal/session"
	"github.com/interviewmate/stt-relay/internal/stt"
)

// Channel ids used when the client does not pick a dual-channel label.
const primaryChannel = "primary"

// dualChannels maps the 1-byte prefix of dual-mode audio frames to channels.
var dualChannels = []string{session.LabelMe, session.LabelInterviewer}

// connectRequest is what a client asks for when it opens /ws/transcribe.
type connectRequest struct {
	Language string
	Mode     string
	Speaker  string
	Diarize  *bool
	Labels   map[string]string
}

func parseConnectRequest(q url.Values, defaultLanguage string) connectRequest {
	req := connectRequest{
		Language: strings.TrimSpace(q.Get("language")),
		Mode:     strings.ToLower(strings.TrimSpace(q.Get("mode"))),
		Speaker:  strings.ToLower(strings.TrimSpace(q.Get("speaker"))),
		Labels:   make(map[string]string),
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}
	if raw := q.Get("diarize"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			req.Diarize = &v
		}
	}
	for _, l := range q["label"] {
		raw, display, ok := strings.Cut(l, ":")
		if ok && strings.TrimSpace(raw) != "" {
			req.Labels[strings.TrimSpace(raw)] = strings.TrimSpace(display)
		}
	}
	return req
}

func (r connectRequest) dual() bool {
	return r.Mode == "dual"
}

// sessions returns the upstream sessions the request needs. Contradictions
// the session manager also checks (diarize with a speaker) are passed through
// so they are reported the same way.
func (r connectRequest) sessions() ([]session.Params, error) {
	switch r.Mode {
	case "", "single":
	case "dual":
		if r.Speaker != "" {
			return nil, &stt.UnsupportedModeError{Reason: "dual mode carries both speaker labels; do not set speaker"}
		}
		if r.Diarize != nil && *r.Diarize {
			return nil, &stt.UnsupportedModeError{Reason: "diarization cannot be combined with dual-channel labels"}
		}
		params := make([]session.Params, 0, len(dualChannels))
		for _, label := range dualChannels {
			params = append(params, session.Params{ChannelID: label, Language: r.Language, SpeakerLabel: label})
		}
		return params, nil
	default:
		return nil, &stt.UnsupportedModeError{Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}

	diarize := r.Speaker == ""
	if r.Diarize != nil {
		diarize = *r.Diarize
	}
	channel := primaryChannel
	if r.Speaker != "" {
		channel = r.Speaker
	}
	return []session.Params{{
		ChannelID:    channel,
		Language:     r.Language,
		Diarize:      diarize,
		SpeakerLabel: r.Speaker,
	}}, nil
}
