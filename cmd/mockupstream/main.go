// Command mockupstream serves a fake copy of the upstream leaderboard API
// (/v1/leaderboard/{seasonID} and /v1/clubs) for local development and for
// the season-pipeline end-to-end test scenario, generating realistic
// player/club data instead of requiring a live upstream.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"

	"thefinals-leaderboard-bot/internal/finalsapi"
)

func main() {
	addr := ":8090"
	if v := os.Getenv("MOCKUPSTREAM_ADDR"); v != "" {
		addr = v
	}
	numPlayers := 5000
	if len(os.Args) > 1 {
		if n, err := strconv.Atoi(os.Args[1]); err == nil {
			numPlayers = n
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/leaderboard/", func(w http.ResponseWriter, r *http.Request) {
		seasonID := strings.TrimPrefix(r.URL.Path, "/v1/leaderboard/")
		writeJSON(w, generateLeaderboard(seasonID, numPlayers))
	})
	mux.HandleFunc("/v1/clubs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, generateClubCatalogue(200))
	})

	log.Printf("mockupstream listening on %s, serving %d players per season", addr, numPlayers)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

var firstNames = []string{
	"Alex", "Bailey", "Casey", "Dakota", "Evan", "Finley", "Graham", "Harper",
	"Iris", "Jordan", "Kai", "Logan", "Morgan", "Noah", "Owen", "Parker",
	"Quinn", "Riley", "Sam", "Taylor", "Uma", "Vale", "Waite", "Xavier",
}

var clubTags = []string{
	"VOID", "ECHO", "NOVA", "GRIT", "FUSE", "RAZE", "PRIME", "FLUX",
}

func generateLeaderboard(seasonID string, count int) finalsapi.LeaderboardResponse {
	rng := rand.New(rand.NewSource(seasonSeed(seasonID)))
	players := make([]finalsapi.PlayerDTO, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("%s%d", firstNames[rng.Intn(len(firstNames))], rng.Intn(10000))
		players[i] = finalsapi.PlayerDTO{
			Rank:      i + 1,
			Name:      name,
			ClubTag:   clubTags[rng.Intn(len(clubTags))],
			RankScore: gaussianScore(rng, 0, 20000, 50000) - int64(i)*3,
			Change:    int64(rng.Intn(21) - 10),
			SteamName: name,
		}
	}
	return finalsapi.LeaderboardResponse{Count: len(players), Data: players}
}

func generateClubCatalogue(memberCountPerClub int) finalsapi.ClubCatalogueResponse {
	rng := rand.New(rand.NewSource(42))
	clubs := make([]finalsapi.ClubDTO, len(clubTags))
	for i, tag := range clubTags {
		members := make([]finalsapi.MemberDTO, memberCountPerClub)
		for j := range members {
			members[j] = finalsapi.MemberDTO{
				Name:  fmt.Sprintf("%s%d", firstNames[rng.Intn(len(firstNames))], rng.Intn(10000)),
				Score: gaussianScore(rng, 0, 10000, 30000),
			}
		}
		clubs[i] = finalsapi.ClubDTO{
			ClubTag: tag,
			Members: members,
			Positions: []finalsapi.ModePositionDTO{
				{Mode: "quick_cash", Rank: i + 1, TotalValue: gaussianScore(rng, 0, 500000, 1000000)},
			},
		}
	}
	return finalsapi.ClubCatalogueResponse{Count: len(clubs), Data: clubs}
}

// seasonSeed derives a stable RNG seed from the season id so repeated
// requests for the same season return a consistent leaderboard.
func seasonSeed(seasonID string) int64 {
	var h uint64 = 14695981039346656037
	for _, b := range []byte(seasonID) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return int64(h)
}

func gaussianScore(rng *rand.Rand, min, mean, max float64) int64 {
	stdDev := (max - min) / 4
	value := rng.NormFloat64()*stdDev + mean
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return int64(math.Round(value))
}
