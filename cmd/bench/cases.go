// README: Smoke cases for the dispatch API plus DB, Redis and throughput checks. Cases run in order and share the incident they create.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"herodispatch/internal/infra"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

// Offsets north of the incident, in degrees latitude.
const (
	nearOffset = 0.01 // ~1.1 km
	farOffset  = 0.2  // ~22 km
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	incidentID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) helper(i int) (string, bool) {
	if i >= len(r.cfg.HelperTokens) {
		return "", false
	}
	return r.cfg.HelperTokens[i], true
}

func (r *Runner) position(offset float64) map[string]any {
	return map[string]any{"lat": r.cfg.Lat + offset, "lng": r.cfg.Lng}
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusFail, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Schema: apply (optional)",
			Focus: "create missing tables",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				if err := infra.Migrate(ctx, r.db); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Schema: tables exist",
			Focus: "information_schema lookup",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				for _, t := range infra.Tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass}
			},
		},

		apiCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),
		apiCase("API: submit without token -> 401", http.MethodPost, "/api/incidents", "", map[string]any{}, http.StatusUnauthorized),

		{
			Name:  "Incident: submit missing fields -> 400",
			Focus: "request validation",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.ReporterToken == "" {
					return Result{Status: StatusSkip, Note: "no reporter token"}
				}
				res, _ := r.call(ctx, http.MethodPost, "/api/incidents", r.cfg.ReporterToken, map[string]any{"severity": "critical"}, nil)
				return expect(res, http.StatusBadRequest)
			},
		},
		{
			Name:  "Incident: submit critical",
			Focus: "incident created and first wave scheduled",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.ReporterToken == "" {
					return Result{Status: StatusSkip, Note: "no reporter token"}
				}
				body := r.position(0)
				body["severity"] = "critical"
				body["type"] = "medical"
				body["description"] = "bench run"

				var created struct {
					ID                  string `json:"id"`
					Status              string `json:"status"`
					AuthoritiesNotified bool   `json:"authorities_notified"`
				}
				res, status := r.call(ctx, http.MethodPost, "/api/incidents", r.cfg.ReporterToken, body, &created)
				if status != http.StatusCreated {
					return expect(res, http.StatusCreated)
				}
				if created.Status != "active" || !created.AuthoritiesNotified {
					res.Status = StatusFail
					res.Note = fmt.Sprintf("status=%s authorities_notified=%t", created.Status, created.AuthoritiesNotified)
					return res
				}
				r.incidentID = created.ID
				res.Note = "id=" + created.ID
				return res
			},
		},
		r.incidentCase("Incident: get", func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodGet, "/api/incidents/"+r.incidentID, r.cfg.ReporterToken, nil, nil)
			return expect(res, http.StatusOK)
		}),
		r.incidentCase("Incident: listed nearby", func(ctx context.Context, r *Runner) Result {
			var listed struct {
				Incidents []struct {
					ID string `json:"id"`
				} `json:"incidents"`
			}
			path := fmt.Sprintf("/api/incidents?lat=%f&lng=%f&radius=1", r.cfg.Lat, r.cfg.Lng)
			res, status := r.call(ctx, http.MethodGet, path, r.cfg.ReporterToken, nil, &listed)
			if status != http.StatusOK {
				return expect(res, http.StatusOK)
			}
			for _, inc := range listed.Incidents {
				if inc.ID == r.incidentID {
					return expect(res, http.StatusOK)
				}
			}
			res.Status = StatusFail
			res.Note = fmt.Sprintf("%s missing from %d nearby incidents", r.incidentID, len(listed.Incidents))
			return res
		}),
		r.incidentCase("Accept: helper too far -> 422", func(ctx context.Context, r *Runner) Result {
			token, ok := r.helper(0)
			if !ok {
				return Result{Status: StatusSkip, Note: "no helper token"}
			}
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/accept", token, r.position(farOffset), nil)
			return expect(res, http.StatusUnprocessableEntity)
		}),
		r.incidentCase("Accept: same helper concurrently", concurrentAccept),
		r.incidentCase("Accept: second helper joins", func(ctx context.Context, r *Runner) Result {
			token, ok := r.helper(1)
			if !ok {
				return Result{Status: StatusSkip, Note: "needs two helper tokens"}
			}
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/accept", token, r.position(nearOffset), nil)
			return expect(res, http.StatusCreated)
		}),
		r.incidentCase("Location: committed helper ping", func(ctx context.Context, r *Runner) Result {
			token, ok := r.helper(0)
			if !ok {
				return Result{Status: StatusSkip, Note: "no helper token"}
			}
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/locations", token, r.position(nearOffset/2), nil)
			return expect(res, http.StatusCreated)
		}),
		r.incidentCase("Location: reporter ping -> 403", func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/locations", r.cfg.ReporterToken, r.position(0), nil)
			return expect(res, http.StatusForbidden)
		}),
		r.incidentCase("Perf: location ping throughput", perfPings),
		r.incidentCase("Resolve: reporter resolves", func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/resolve", r.cfg.ReporterToken, map[string]any{}, nil)
			return expect(res, http.StatusOK)
		}),
		r.incidentCase("Resolve: second resolve -> 409", func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/resolve", r.cfg.ReporterToken, map[string]any{}, nil)
			return expect(res, http.StatusConflict)
		}),

		manualCase("Escalation: wave timing", "watch devices: Medical at 0s, Fire 5s, Police 10s, All Citizens 15s"),
		manualCase("Escalation: radius growth", "leave an incident open and check radius_level reaches 3 at 60s"),
		manualCase("Realtime: incident room", "join emergency:<id> over /ws and check helper locations arrive"),
	}
}

// incidentCase skips when no incident was created earlier in the run.
func (r *Runner) incidentCase(name string, run func(ctx context.Context, r *Runner) Result) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.incidentID == "" {
				return Result{Status: StatusSkip, Note: "no incident created"}
			}
			return run(ctx, r)
		},
	}
}

func apiCase(name, method, path, token string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			res, _ := r.call(ctx, method, path, token, body, nil)
			return expect(res, want)
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: StatusSkip, Note: note}
		},
	}
}

// call performs one request and decodes the body into out when the status is 2xx.
// The returned Result carries latency and status; its Status is left empty.
func (r *Runner) call(ctx context.Context, method, path, token string, body, out any) (Result, int) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}, 0
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}, 0
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}, 0
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Result{Status: StatusFail, Latency: latency, Note: "decode: " + err.Error()}, resp.StatusCode
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return Result{Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}, resp.StatusCode
}

func expect(res Result, want int) Result {
	if res.Status == StatusFail {
		return res
	}
	if res.Note == fmt.Sprintf("status=%d", want) {
		res.Status = StatusPass
		return res
	}
	res.Status = StatusFail
	res.Note = fmt.Sprintf("%s, want %d", res.Note, want)
	return res
}

// concurrentAccept races one helper against itself; exactly one request may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	token, ok := r.helper(0)
	if !ok {
		return Result{Status: StatusSkip, Note: "no helper token"}
	}

	var mu sync.Mutex
	statuses := map[int]int{}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			_, status := r.call(gctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/accept", token, r.position(nearOffset), nil)
			mu.Lock()
			statuses[status]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	note := fmt.Sprintf("created=%d conflict=%d other=%d",
		statuses[http.StatusCreated], statuses[http.StatusConflict],
		r.cfg.Concurrency-statuses[http.StatusCreated]-statuses[http.StatusConflict])
	if statuses[http.StatusCreated] == 1 && statuses[http.StatusConflict] == r.cfg.Concurrency-1 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

// perfPings hammers the ping endpoint; rate-limited responses are counted, not failed.
func perfPings(ctx context.Context, r *Runner) Result {
	token, ok := r.helper(0)
	if !ok {
		return Result{Status: StatusSkip, Note: "no helper token"}
	}

	end := time.Now().Add(r.cfg.Duration)
	var mu sync.Mutex
	var accepted, limited, failed int
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, status := r.call(ctx, http.MethodPost, "/api/incidents/"+r.incidentID+"/locations", token, r.position(nearOffset/2), nil)
				mu.Lock()
				switch status {
				case http.StatusCreated:
					accepted++
				case http.StatusTooManyRequests:
					limited++
				default:
					failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	total := accepted + limited + failed
	if total == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	note := fmt.Sprintf("rps=%.1f accepted=%d limited=%d failed=%d",
		float64(total)/r.cfg.Duration.Seconds(), accepted, limited, failed)
	if failed > 0 || accepted == 0 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}
