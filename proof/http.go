package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPVerifier forwards verification to an external service. The service
// receives
//
//	{"version":1,"threshold":t,"num_peers":n,"proof":[...],"inputs":[...]}
//
// and answers {"accept":true|false}. Any transport failure or non-200 status
// is reported as an error that does not wrap [ErrRejected], so callers can
// tell an unavailable verifier from a bad proof.
type HTTPVerifier struct {
	URL       string
	Shape     Shape
	Client    *http.Client
	UserAgent string
}

type verifyRequest struct {
	Version   int        `json:"version"`
	Threshold int        `json:"threshold"`
	NumPeers  int        `json:"num_peers"`
	Proof     Compressed `json:"proof"`
	Inputs    []string   `json:"inputs"`
}

type verifyResponse struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// NewHTTPVerifier returns a verifier for shape posting to url.
func NewHTTPVerifier(url string, shape Shape, timeout time.Duration) *HTTPVerifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVerifier{
		URL:       url,
		Shape:     shape,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: "oprfkeygen",
	}
}

// Verify implements [Verifier].
func (v *HTTPVerifier) Verify(ctx context.Context, proof Compressed, inputs Inputs) error {
	body, err := json.Marshal(verifyRequest{
		Version:   LayoutVersion,
		Threshold: v.Shape.Threshold,
		NumPeers:  v.Shape.NumPeers,
		Proof:     proof,
		Inputs:    inputs.Strings(),
	})
	if err != nil {
		return fmt.Errorf("proof: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("proof: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.UserAgent != "" {
		req.Header.Set("User-Agent", v.UserAgent)
	}

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proof: verifier unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("proof: verifier returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return fmt.Errorf("proof: decode response: %w", err)
	}
	if !out.Accept {
		if out.Reason != "" {
			return fmt.Errorf("%w: %s", ErrRejected, out.Reason)
		}
		return ErrRejected
	}
	return nil
}
