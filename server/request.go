package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/abdulmalikadeyemo/email-assistant/jobs"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

// replyBody is the request body of both reply endpoints. Top-level fields
// other than email and seed are folded into the seed, so
// {"email": "...", "customer_id": "c-1"} works as well as the nested form.
type replyBody struct {
	Email string         `mapstructure:"email"`
	Seed  map[string]any `mapstructure:"seed"`
	Extra map[string]any `mapstructure:",remain"`
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (jobs.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return jobs.Request{}, fmt.Errorf("invalid request body: %w", err)
	}

	var body replyBody
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &body,
		TagName: "mapstructure",
	})
	if err != nil {
		return jobs.Request{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return jobs.Request{}, fmt.Errorf("invalid request body: %w", err)
	}

	if strings.TrimSpace(body.Email) == "" {
		return jobs.Request{}, workflow.ErrEmptyEmail
	}

	seed := make(map[string]any, len(body.Seed)+len(body.Extra))
	for k, v := range body.Extra {
		seed[k] = v
	}
	for k, v := range body.Seed {
		seed[k] = v
	}
	if len(seed) == 0 {
		seed = nil
	}
	return jobs.Request{Email: body.Email, Seed: seed}, nil
}

func isRequestError(err error) bool {
	return errors.Is(err, workflow.ErrEmptyEmail) || errors.Is(err, workflow.ErrReservedField)
}
