// Package finalsapi is a thin typed wrapper over httpcache.Client for the
// upstream leaderboard API, in the style of a small DTO-mapping client
// (see nonomal-WeKnora's client/faq.go): it owns no caching or retry logic
// of its own and simply unmarshals httpcache.Client responses into typed
// records.
package finalsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/httpcache"
)

// PlayerDTO is one leaderboard row as the upstream API returns it.
type PlayerDTO struct {
	Rank       int    `json:"rank"`
	Name       string `json:"name"`
	ClubTag    string `json:"clubTag"`
	RankScore  int64  `json:"rankScore"`
	Fame       int64  `json:"fame"`
	Change     int64  `json:"change"`
	SteamName  string `json:"steamName"`
	PSNName    string `json:"psnName"`
	XboxName   string `json:"xboxName"`
}

// Score returns the unified score field: rankScore when present, legacy
// fame otherwise.
func (p PlayerDTO) Score() int64 {
	if p.RankScore != 0 {
		return p.RankScore
	}
	return p.Fame
}

// LeaderboardResponse is the upstream full-season leaderboard payload.
type LeaderboardResponse struct {
	Count int         `json:"count"`
	Data  []PlayerDTO `json:"data"`
}

// MemberDTO is one club roster entry.
type MemberDTO struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// ModePositionDTO is a club's leaderboard position in one game mode.
type ModePositionDTO struct {
	Mode       string `json:"mode"`
	Rank       int    `json:"rank"`
	TotalValue int64  `json:"totalValue"`
}

// ClubDTO is the upstream club-catalogue payload for one club.
type ClubDTO struct {
	ClubTag   string            `json:"clubTag"`
	Members   []MemberDTO       `json:"members"`
	Positions []ModePositionDTO `json:"positions"`
}

// ClubCatalogueResponse wraps the full club catalogue fetch.
type ClubCatalogueResponse struct {
	Count int       `json:"count"`
	Data  []ClubDTO `json:"data"`
}

// Client fetches leaderboard and club data for a given season.
type Client struct {
	hcc *httpcache.Client
}

// New wraps an httpcache.Client with the upstream's typed endpoints.
func New(hcc *httpcache.Client) *Client {
	return &Client{hcc: hcc}
}

// FetchLeaderboard pulls the full leaderboard for a season id. useCache
// controls whether a fresh content-cache hit may short-circuit the call;
// the current-season pipeline passes true for every refresh, initial and
// recurring, and a historical season's one-time load passes false.
func (c *Client) FetchLeaderboard(ctx context.Context, seasonID string, useCache bool) (*LeaderboardResponse, error) {
	endpoint := fmt.Sprintf("/v1/leaderboard/%s", seasonID)
	resp, err := c.hcc.Get(ctx, endpoint, url.Values{}, useCache, 0)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.ServiceUnavailable("finalsapi", fmt.Errorf("leaderboard fetch for season %s returned status %d", seasonID, resp.StatusCode))
	}

	var out LeaderboardResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, apperr.Internal("decoding leaderboard response", err)
	}
	return &out, nil
}

// FetchClubCatalogue pulls the full club catalogue.
func (c *Client) FetchClubCatalogue(ctx context.Context, useCache bool) (*ClubCatalogueResponse, error) {
	resp, err := c.hcc.Get(ctx, "/v1/clubs", url.Values{}, useCache, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.ServiceUnavailable("finalsapi", fmt.Errorf("club catalogue fetch returned status %d", resp.StatusCode))
	}

	var out ClubCatalogueResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, apperr.Internal("decoding club catalogue response", err)
	}
	return &out, nil
}
