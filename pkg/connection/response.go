package connection

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/models"
)

func parseQueryResponse(body []byte) (*models.QueryResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: query response is not JSON", constants.ErrProtocol)
	}

	path := gjson.GetBytes(body, "path")
	if path.Type != gjson.String || path.Str == "" {
		return nil, fmt.Errorf("%w: query response has no path", constants.ErrProtocol)
	}

	res := &models.QueryResponse{Path: path.Str}
	if count := gjson.GetBytes(body, "count"); count.Exists() {
		res.Count = count.Value()
	}
	return res, nil
}

func parseSubscriptionID(body []byte) (models.SubscriptionID, error) {
	if !gjson.ValidBytes(body) {
		return models.SubscriptionID{}, fmt.Errorf("%w: subscription is not JSON", constants.ErrProtocol)
	}

	id := gjson.GetBytes(body, "id.value")
	if id.Type != gjson.String || id.Str == "" {
		return models.SubscriptionID{}, fmt.Errorf("%w: subscription has no id", constants.ErrProtocol)
	}
	return models.SubscriptionID{Value: id.Str}, nil
}

// parseAck reads a command acknowledgement. The status holds exactly one of
// "ok", "error" and "rejection".
func parseAck(body []byte) (*models.Ack, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: acknowledgement is not JSON", constants.ErrProtocol)
	}

	ack := gjson.ParseBytes(body)
	res := &models.Ack{
		MessageID: firstString(ack, "messageId.uuid", "messageId", "message_id.uuid"),
	}

	status := ack.Get("status")
	switch {
	case status.Get("ok").Exists():
		res.OK = true
	case status.Get("error").Exists():
		e := status.Get("error")
		res.Error = &models.CommandError{
			Type:    e.Get("type").String(),
			Code:    int(e.Get("code").Int()),
			Message: e.Get("message").String(),
		}
		if v, ok := e.Get("validationError").Value().(map[string]any); ok {
			res.Error.ValidationError = v
		}
	case status.Get("rejection").Exists():
		r := status.Get("rejection")
		res.Rejection = &models.CommandRejection{
			ID: firstString(r, "id.value", "id"),
		}
		if v, ok := r.Get("message").Value().(map[string]any); ok {
			res.Rejection.Message = v
		}
		if v, ok := r.Get("context").Value().(map[string]any); ok {
			res.Rejection.Context = v
		}
	default:
		return nil, fmt.Errorf("%w: acknowledgement has no status", constants.ErrProtocol)
	}
	return res, nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String {
			return v.Str
		}
	}
	return ""
}
