package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"docrag/internal/server"
	"docrag/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", "", "listen address (default from DOCRAG_ADDR or :8091)")
		_ = fs.Parse(os.Args[2:])
		if err := server.Run(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version.String())
	case "reindex":
		reindexCmd(os.Args[2:])
	case "ask":
		askCmd(os.Args[2:])
	case "jobs":
		jobsCmd(os.Args[2:])
	case "metrics":
		metricsCmd(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("docrag - document indexing and retrieval-augmented answering")
	fmt.Println("usage:")
	fmt.Println("  docrag serve [--addr :8091]")
	fmt.Println("  docrag reindex")
	fmt.Println("  docrag ask [--mode plain|grounded|grounded_filtered|compare] [--k 8] [--threshold 0.35] \"<question>\"")
	fmt.Println("  docrag jobs [list|get <id>]")
	fmt.Println("  docrag metrics")
	fmt.Println("  docrag version")
}

func serverURL() string {
	if v := os.Getenv("DOCRAG_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:8091"
}

func newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, serverURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := os.Getenv("DOCRAG_API_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func doJSON(method, path string, body []byte, out any) error {
	req, err := newRequest(method, path, body)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		_, _ = os.Stdout.Write(data)
		return nil
	}
	return json.Unmarshal(data, out)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func reindexCmd(args []string) {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	_ = fs.Parse(args)
	var job struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		DocumentCount int    `json:"documentCount"`
		ChunkCount    int    `json:"chunkCount"`
	}
	if err := doJSON(http.MethodPost, "/reindex", []byte("{}"), &job); err != nil {
		fatal(err)
	}
	fmt.Printf("%s %s: %d documents, %d chunks\n", job.ID, job.Status, job.DocumentCount, job.ChunkCount)
}

func askCmd(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	mode := fs.String("mode", "grounded_filtered", "answer mode")
	k := fs.Int("k", 0, "retrieval top K (0 = server default)")
	threshold := fs.Float64("threshold", -2, "similarity threshold (-2 = server default)")
	_ = fs.Parse(args)
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Println("usage: docrag ask [--mode grounded_filtered] [--k 8] [--threshold 0.35] \"<question>\"")
		os.Exit(1)
	}

	req := map[string]any{
		"question": strings.Join(rest, " "),
		"mode":     *mode,
	}
	if *k > 0 {
		req["topK"] = *k
	}
	if *threshold >= -1 {
		req["threshold"] = *threshold
	}
	body, err := json.Marshal(req)
	if err != nil {
		fatal(err)
	}

	var res struct {
		Mode       string  `json:"mode"`
		Answer     *answer `json:"answer"`
		Plain      *answer `json:"plain"`
		Unfiltered *answer `json:"unfiltered"`
		Filtered   *answer `json:"filtered"`
	}
	if err := doJSON(http.MethodPost, "/ask", body, &res); err != nil {
		fatal(err)
	}
	if res.Answer != nil {
		printAnswer(res.Answer)
		return
	}
	if res.Plain != nil {
		fmt.Println("== plain ==")
		printAnswer(res.Plain)
	}
	if res.Unfiltered != nil {
		fmt.Println("== unfiltered ==")
		printAnswer(res.Unfiltered)
	}
	if res.Filtered != nil {
		fmt.Println("== filtered ==")
		printAnswer(res.Filtered)
	}
}

type answer struct {
	Text            string `json:"text"`
	Grounded        bool   `json:"grounded"`
	CitationWarning bool   `json:"citationWarning"`
	Chunks          []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"chunks"`
}

func printAnswer(a *answer) {
	fmt.Println(a.Text)
	if !a.Grounded {
		fmt.Println("(answered without document context)")
	}
	if a.CitationWarning {
		fmt.Println("(warning: answer cites none of the retrieved chunks)")
	}
	for _, c := range a.Chunks {
		fmt.Printf("  %s score=%.3f\n", c.ID, c.Score)
	}
}

func jobsCmd(args []string) {
	if len(args) == 0 || args[0] == "list" {
		var res struct {
			Jobs []struct {
				ID            string `json:"id"`
				Status        string `json:"status"`
				StartedAt     string `json:"startedAt"`
				DocumentCount int    `json:"documentCount"`
				ChunkCount    int    `json:"chunkCount"`
				Error         string `json:"error"`
			} `json:"jobs"`
		}
		if err := doJSON(http.MethodGet, "/jobs", nil, &res); err != nil {
			fatal(err)
		}
		for _, j := range res.Jobs {
			line := fmt.Sprintf("%s  %-9s  docs=%d chunks=%d  %s", j.ID, j.Status, j.DocumentCount, j.ChunkCount, j.StartedAt)
			if j.Error != "" {
				line += "  error=" + j.Error
			}
			fmt.Println(line)
		}
		return
	}
	if args[0] == "get" && len(args) > 1 {
		if err := doJSON(http.MethodGet, "/jobs/"+args[1], nil, nil); err != nil {
			fatal(err)
		}
		fmt.Println()
		return
	}
	fmt.Println("usage: docrag jobs [list|get <id>]")
	os.Exit(1)
}

func metricsCmd(args []string) {
	if err := doJSON(http.MethodGet, "/metrics?format=json", nil, nil); err != nil {
		fatal(err)
	}
	fmt.Println()
}
