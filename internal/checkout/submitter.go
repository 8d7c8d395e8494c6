package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"sleepoutside/internal/domain"
)

// Submitter hands a finished order to whoever fulfils it.
type Submitter interface {
	Submit(ctx context.Context, o domain.Order) (domain.Confirmation, error)
}

// Poster is the part of remote.Client the submitter needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, body any) ([]byte, error)
}

// RemoteSubmitter POSTs orders to the order service's checkout endpoint.
type RemoteSubmitter struct {
	api  Poster
	path string
}

func NewRemoteSubmitter(api Poster) *RemoteSubmitter {
	return &RemoteSubmitter{api: api, path: "checkout"}
}

func (s *RemoteSubmitter) Submit(ctx context.Context, o domain.Order) (domain.Confirmation, error) {
	body, err := s.api.PostJSON(ctx, s.path, o)
	if err != nil {
		return domain.Confirmation{}, err
	}
	var resp struct {
		OrderID string `json:"orderId"`
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Confirmation{}, fmt.Errorf("checkout: decode confirmation: %w", err)
	}
	c := domain.Confirmation{OrderID: resp.OrderID, Message: resp.Message, Raw: body}
	if c.OrderID == "" {
		c.OrderID = resp.ID
	}
	return c, nil
}
