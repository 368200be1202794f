package trustomer

import (
	"encoding/json"
	"net/http"
)

// wireConfig mirrors the trustomer-config service's JSON response shape.
type wireConfig struct {
	OutgoingSendingApplication   string       `json:"outgoing_sending_application"`
	OutgoingSendingFacility      string       `json:"outgoing_sending_facility"`
	OutgoingReceivingApplication string       `json:"outgoing_receiving_application"`
	OutgoingReceivingFacility    string       `json:"outgoing_receiving_facility"`
	OutgoingProcessingID         string       `json:"outgoing_processing_id"`
	OutgoingDateTimeFormat       string       `json:"outgoing_date_time_format"`
	GenerateORUMessages          bool         `json:"generate_oru_messages"`
	OxygenMasks                  []wireOxygenMask `json:"oxygen_masks"`
}

type wireOxygenMask struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func decodeConfig(resp *http.Response) (Config, error) {
	var wire wireConfig
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Config{}, err
	}

	masks := make([]OxygenMask, 0, len(wire.OxygenMasks))
	for _, m := range wire.OxygenMasks {
		masks = append(masks, OxygenMask{Code: m.Code, Name: m.Name})
	}

	return Config{
		OutgoingSendingApplication:   wire.OutgoingSendingApplication,
		OutgoingSendingFacility:      wire.OutgoingSendingFacility,
		OutgoingReceivingApplication: wire.OutgoingReceivingApplication,
		OutgoingReceivingFacility:    wire.OutgoingReceivingFacility,
		OutgoingProcessingID:         wire.OutgoingProcessingID,
		OutgoingDateTimeFormat:       wire.OutgoingDateTimeFormat,
		GenerateORUMessages:          wire.GenerateORUMessages,
		OxygenMasks:                  masks,
	}, nil
}
