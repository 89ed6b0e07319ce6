package mailwizz

import "encoding/json"

// Encoding selects the request body encoding for an endpoint. The platform
// requires form-encoded bodies for subscriber writes and JSON for
// transactional sends; keeping this per-endpoint instead of per-client lets a
// different target platform change the contract in one place.
type Encoding string

const (
	EncodingForm Encoding = "form"
	EncodingJSON Encoding = "json"
)

// endpointEncodings is the per-endpoint encoding contract.
var endpointEncodings = map[string]Encoding{
	"subscriber.create":      EncodingForm,
	"subscriber.update":      EncodingForm,
	"subscriber.unsubscribe": EncodingForm,
	"subscriber.delete":      EncodingForm,
	"transactional.send":     EncodingJSON,
}

// Marker fields written by StopSequence. The platform's autoresponder
// segments exclude subscribers carrying these.
const (
	FieldAutorespondersStopped = "AUTORESPONDERS_STOPPED"
	FieldAutorespondersReason  = "AUTORESPONDERS_STOP_REASON"
)

// apiResponse is the platform's envelope for subscriber endpoints.
type apiResponse struct {
	Status string          `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
	Data   struct {
		Record struct {
			SubscriberUID string `json:"subscriber_uid"`
			Email         string `json:"EMAIL"`
		} `json:"record"`
		Records []struct {
			SubscriberUID string `json:"subscriber_uid"`
			Email         string `json:"EMAIL"`
		} `json:"records"`
	} `json:"data"`
}

// transactionalRequest is the JSON body for transactional sends.
type transactionalRequest struct {
	ToEmail      string            `json:"to_email"`
	TemplateUID  string            `json:"template_uid"`
	CustomFields map[string]string `json:"custom_fields"`
}

// ErrorMessage extracts a printable error from the envelope.
func (r *apiResponse) ErrorMessage() string {
	if len(r.Error) == 0 {
		return ""
	}
	// The API returns either a plain string or a field->message map
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return string(r.Error)
}
