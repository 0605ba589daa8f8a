package perimeter

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
)

// Reply field names.
const (
	fieldMode               = "mode"
	fieldSince              = "since"
	fieldCountdownRemaining = "countdown_remaining_seconds"
	fieldPolicy             = "policy"
	fieldCameras            = "cameras"
	fieldDetectors          = "detectors"
	fieldRules              = "rules"
	fieldLastIncident       = "last_incident"
	fieldChanged            = "changed"
	fieldPreviousMode       = "previous_mode"

	fieldIncidentID          = "id"
	fieldIncidentRule        = "rule"
	fieldIncidentCameras     = "cameras"
	fieldIncidentDetectors   = "detectors"
	fieldIncidentConfirmedAt = "confirmed_at"
)

// ErrMalformedReply is returned when a reply does not carry a valid status.
var ErrMalformedReply = errors.New("malformed status reply")

// Reply is the decoded result of a control call.
type Reply struct {
	// Status is the controller status after the call.
	Status *alarm.Status
	// Changed reports whether Arm or Disarm changed the mode.
	Changed bool
	// PreviousMode is the mode a Reset started from.
	PreviousMode *alarm.Mode
}

// encodeReply converts a reply into its wire form.
func encodeReply(r *Reply) (*structpb.Struct, error) {
	fields := statusFields(r.Status)
	fields[fieldChanged] = r.Changed

	if r.PreviousMode != nil {
		fields[fieldPreviousMode] = r.PreviousMode.String()
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}

	return s, nil
}

func statusFields(s *alarm.Status) map[string]any {
	if s == nil {
		s = new(alarm.Status)
	}

	fields := map[string]any{
		fieldMode:               s.Mode.String(),
		fieldCountdownRemaining: s.CountdownRemaining.Seconds(),
		fieldPolicy:             s.Policy,
		fieldCameras:            s.Cameras,
		fieldDetectors:          s.Detectors,
		fieldRules:              s.Rules,
	}

	if !s.Since.IsZero() {
		fields[fieldSince] = s.Since.UTC().Format(time.RFC3339Nano)
	}

	if i := s.LastIncident; i != nil {
		fields[fieldLastIncident] = map[string]any{
			fieldIncidentID:          i.ID,
			fieldIncidentRule:        i.Rule,
			fieldIncidentCameras:     toList(i.Cameras),
			fieldIncidentDetectors:   toList(i.Detectors),
			fieldIncidentConfirmedAt: i.ConfirmedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	return fields
}

// DecodeReply converts a wire reply back into a Reply.
//
//nolint:cyclop // Field-by-field decoding.
func DecodeReply(s *structpb.Struct) (*Reply, error) {
	fields := s.GetFields()

	mode, ok := alarm.ParseMode(fields[fieldMode].GetStringValue())
	if !ok {
		return nil, fmt.Errorf("%w: mode %q", ErrMalformedReply, fields[fieldMode].GetStringValue())
	}

	status := &alarm.Status{
		Mode:               mode,
		CountdownRemaining: time.Duration(fields[fieldCountdownRemaining].GetNumberValue() * float64(time.Second)),
		Policy:             fields[fieldPolicy].GetStringValue(),
		Cameras:            int(fields[fieldCameras].GetNumberValue()),
		Detectors:          int(fields[fieldDetectors].GetNumberValue()),
		Rules:              int(fields[fieldRules].GetNumberValue()),
	}

	if v := fields[fieldSince].GetStringValue(); v != "" {
		since, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%w: since: %w", ErrMalformedReply, err)
		}

		status.Since = since
	}

	if incident := fields[fieldLastIncident].GetStructValue(); incident != nil {
		f := incident.GetFields()

		confirmedAt, err := time.Parse(time.RFC3339Nano, f[fieldIncidentConfirmedAt].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: confirmed_at: %w", ErrMalformedReply, err)
		}

		status.LastIncident = &alarm.Incident{
			ID:          f[fieldIncidentID].GetStringValue(),
			Rule:        f[fieldIncidentRule].GetStringValue(),
			Cameras:     fromList(f[fieldIncidentCameras].GetListValue()),
			Detectors:   fromList(f[fieldIncidentDetectors].GetListValue()),
			ConfirmedAt: confirmedAt,
		}
	}

	reply := &Reply{
		Status:  status,
		Changed: fields[fieldChanged].GetBoolValue(),
	}

	if v, ok := fields[fieldPreviousMode]; ok {
		previous, ok := alarm.ParseMode(v.GetStringValue())
		if !ok {
			return nil, fmt.Errorf("%w: previous mode %q", ErrMalformedReply, v.GetStringValue())
		}

		reply.PreviousMode = &previous
	}

	return reply, nil
}

func toList(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}

	return out
}

func fromList(l *structpb.ListValue) []string {
	out := make([]string, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		out = append(out, v.GetStringValue())
	}

	return out
}
