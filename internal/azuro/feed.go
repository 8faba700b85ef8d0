package azuro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// FeedClient is a GraphQL client for the Azuro subgraph, used to query the
// bets actually recorded on-chain for a wallet. Reconciliation treats this
// feed as the source of truth when the relayer's answer was lost.
type FeedClient struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewFeedClient creates a subgraph client for the given endpoint.
func NewFeedClient(graphqlURL, apiKey string) *FeedClient {
	return &FeedClient{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// feedBet mirrors the subgraph's bet entity.
type feedBet struct {
	BetID      string `json:"betId"`
	TxHash     string `json:"txHash"`
	Actor      string `json:"actor"`
	Amount     string `json:"amount"`
	Odds       string `json:"odds"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	Payout     string `json:"payout"`
	IsRedeemed bool   `json:"isRedeemed"`
	CreatedAt  string `json:"createdBlockTimestamp"`
	Selections []struct {
		Outcome struct {
			OutcomeID string `json:"outcomeId"`
			Condition struct {
				ConditionID string `json:"conditionId"`
			} `json:"condition"`
		} `json:"outcome"`
	} `json:"selections"`
}

const betFields = `
	betId
	txHash
	actor
	amount
	odds
	status
	result
	payout
	isRedeemed
	createdBlockTimestamp
	selections {
		outcome {
			outcomeId
			condition {
				conditionId
			}
		}
	}
`

// FetchBetsByBettor queries all on-chain bets placed by the wallet in the
// given time window, ordered oldest first.
func (c *FeedClient) FetchBetsByBettor(ctx context.Context, bettor string, since, until time.Time) ([]domain.ChainBet, error) {
	query := `
		query BetsByBettor($bettor: String!, $since: BigInt!, $until: BigInt!, $first: Int!) {
			bets(
				first: $first
				orderBy: createdBlockTimestamp
				orderDirection: asc
				where: {
					actor: $bettor
					createdBlockTimestamp_gte: $since
					createdBlockTimestamp_lte: $until
				}
			) {` + betFields + `}
		}
	`

	variables := map[string]any{
		"bettor": strings.ToLower(bettor),
		"since":  strconv.FormatInt(since.Unix(), 10),
		"until":  strconv.FormatInt(until.Unix(), 10),
		"first":  1000,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("azuro/feed: fetch bets by bettor: %w", err)
	}

	var result struct {
		Bets []feedBet `json:"bets"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("azuro/feed: decode bets: %w", err)
	}

	bets := make([]domain.ChainBet, 0, len(result.Bets))
	for _, b := range result.Bets {
		bets = append(bets, toChainBet(b))
	}
	return bets, nil
}

// FetchBet returns a single on-chain bet by its protocol bet id, or
// domain.ErrNotFound when the subgraph does not know it.
func (c *FeedClient) FetchBet(ctx context.Context, betID string) (domain.ChainBet, error) {
	query := `
		query BetByID($betId: String!) {
			bets(first: 1, where: { betId: $betId }) {` + betFields + `}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"betId": betID})
	if err != nil {
		return domain.ChainBet{}, fmt.Errorf("azuro/feed: fetch bet %s: %w", betID, err)
	}

	var result struct {
		Bets []feedBet `json:"bets"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.ChainBet{}, fmt.Errorf("azuro/feed: decode bet: %w", err)
	}
	if len(result.Bets) == 0 {
		return domain.ChainBet{}, fmt.Errorf("azuro/feed: bet %s: %w", betID, domain.ErrNotFound)
	}
	return toChainBet(result.Bets[0]), nil
}

func toChainBet(b feedBet) domain.ChainBet {
	odds, _ := strconv.ParseFloat(b.Odds, 64)
	ts, _ := strconv.ParseInt(b.CreatedAt, 10, 64)

	legs := make([]domain.ChainBetLeg, 0, len(b.Selections))
	for _, s := range b.Selections {
		legs = append(legs, domain.ChainBetLeg{
			ConditionID: s.Outcome.Condition.ConditionID,
			OutcomeID:   s.Outcome.OutcomeID,
		})
	}

	return domain.ChainBet{
		BetID:     b.BetID,
		TxHash:    b.TxHash,
		Bettor:    b.Actor,
		Amount:    b.Amount,
		Odds:      odds,
		Legs:      legs,
		Status:    domain.ChainBetStatus(b.Status),
		Result:    b.Result,
		Payout:    b.Payout,
		Redeemed:  b.IsRedeemed,
		CreatedAt: time.Unix(ts, 0).UTC(),
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *FeedClient) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
