package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	envAPIURL     = "DIVINER_API_URL"
	defaultAPIURL = "http://localhost:8080"
)

type querySearchRequest struct {
	Query     string  `json:"query"`
	Category  string  `json:"category,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

type querySearchResult struct {
	ID         int64   `json:"id"`
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type querySearchResponse struct {
	Success          bool                `json:"success"`
	DetectedCategory string              `json:"detected_category"`
	Results          []querySearchResult `json:"results"`
	Count            int                 `json:"count"`
}

// QueryCmd creates the query command, a thin client for the search endpoint.
func QueryCmd() *cobra.Command {
	var (
		category  string
		limit     int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the knowledge base",
		Long:  "Searches the knowledge base through a running diviner server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("json")
			return runQuery(args[0], category, limit, threshold, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Restrict to a knowledge category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

func runQuery(query, category string, limit int, threshold float64, outputJSON bool) error {
	baseURL := os.Getenv(envAPIURL)
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	payload, err := json.Marshal(querySearchRequest{
		Query:     query,
		Category:  category,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(baseURL+"/search", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	if outputJSON {
		fmt.Println(string(body))
		return nil
	}

	var result querySearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if result.DetectedCategory != "" {
		fmt.Printf("Category: %s\n", result.DetectedCategory)
	}
	if result.Count == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range result.Results {
		fmt.Printf("%d. [%s] %s (%.2f)\n", i+1, r.Source, truncateContent(r.Content, 120), r.Similarity)
	}
	return nil
}

func truncateContent(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
