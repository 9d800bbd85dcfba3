package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/logging"
)

// Probe status codes used by the RIPE Atlas API.
const (
	atlasStatusConnected    = 1
	atlasStatusDisconnected = 2
)

// AtlasClient reads RIPE Atlas probe metadata. The ratio of connected to
// disconnected in-country probes is the distributed-probe health signal.
type AtlasClient struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
	timeout time.Duration
}

func NewAtlasClient(baseURL string, timeout time.Duration, log *logging.Logger) *AtlasClient {
	return &AtlasClient{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
		log:     log.WithSource("atlas"),
		timeout: timeout,
	}
}

type atlasProbesResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

// FetchProbeHealth counts connected and disconnected public probes in the
// country.
func (c *AtlasClient) FetchProbeHealth(ctx context.Context, country string) (ProbeHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	connected, err := c.countProbes(ctx, country, atlasStatusConnected)
	if err != nil {
		return ProbeHealth{}, err
	}
	disconnected, err := c.countProbes(ctx, country, atlasStatusDisconnected)
	if err != nil {
		return ProbeHealth{}, err
	}
	return ProbeHealth{Connected: connected, Disconnected: disconnected}, nil
}

func (c *AtlasClient) countProbes(ctx context.Context, country string, probeStatus int) (int, error) {
	q := url.Values{}
	q.Set("country_code", country)
	q.Set("is_public", "true")
	q.Set("status", strconv.Itoa(probeStatus))

	var resp atlasProbesResponse
	if err := getJSON(ctx, c.http, c.log, c.baseURL+"/probes/?"+q.Encode(), nil, &resp); err != nil {
		return 0, fmt.Errorf("atlas probes status=%d: %w", probeStatus, err)
	}
	if resp.Count > 0 {
		return resp.Count, nil
	}
	return len(resp.Results), nil
}
