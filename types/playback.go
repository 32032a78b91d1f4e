package types

import (
	"encoding/json"
	"strings"
	"time"
)

// PlaybackRecord marks the first time a listener played a voice message.
type PlaybackRecord struct {
	ListenerId string     `json:"listenerId"`
	PlayedAt   *time.Time `json:"playedAt"`
}

// ParsePlaybackRecord decodes the legacy "<listenerId>_<timestamp>" form. A record without the timestamp suffix,
// or with an unparsable one, keeps the listener and has no PlayedAt.
func ParsePlaybackRecord(s string) PlaybackRecord {
	idx := strings.Index(s, "_")
	if idx < 0 {
		return PlaybackRecord{ListenerId: s}
	}
	rec := PlaybackRecord{ListenerId: s[:idx]}
	if t, err := time.Parse(time.RFC3339Nano, s[idx+1:]); err == nil {
		rec.PlayedAt = &t
	}
	return rec
}

// UnmarshalJSON accepts both the structured object and the legacy string form.
func (r *PlaybackRecord) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ParsePlaybackRecord(s)
		return nil
	}
	type plain PlaybackRecord
	p := plain{}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = PlaybackRecord(p)
	return nil
}

// HasListener reports whether listenerId already played the message.
func (v *VoicePayload) HasListener(listenerId string) bool {
	for _, rec := range v.PlayedBy {
		if rec.ListenerId == listenerId {
			return true
		}
	}
	return false
}

// RecordPlayback appends a record for listenerId unless one exists. First listen wins.
func (v *VoicePayload) RecordPlayback(listenerId string, at time.Time) bool {
	if v.HasListener(listenerId) {
		return false
	}
	t := at
	v.PlayedBy = append(v.PlayedBy, PlaybackRecord{ListenerId: listenerId, PlayedAt: &t})
	return true
}

// Listeners returns one record per listener in play order, keeping the first record of duplicated listeners.
func (v *VoicePayload) Listeners() []PlaybackRecord {
	seen := make(map[string]struct{}, len(v.PlayedBy))
	res := make([]PlaybackRecord, 0, len(v.PlayedBy))
	for _, rec := range v.PlayedBy {
		if rec.ListenerId == "" {
			continue
		}
		if _, ok := seen[rec.ListenerId]; ok {
			continue
		}
		seen[rec.ListenerId] = struct{}{}
		res = append(res, rec)
	}
	return res
}
