package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"leaderboard/internal/api/handlers"
	"leaderboard/internal/models"
	"leaderboard/internal/repository"
	"leaderboard/internal/service"

	"github.com/gofiber/fiber/v2"
	. "github.com/smartystreets/goconvey/convey"
)

// downStore simulates a Redis outage for the readiness probe.
type downStore struct {
	*repository.MemoryStore
}

func (d *downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestApp(store repository.Store) *fiber.App {
	svc := service.NewLeaderboardService(store, nil)
	h := handlers.NewLeaderboardHandler(svc)

	app := fiber.New()
	v1 := app.Group("/v1")
	v1.Post("/games/:game_id/scores", h.SubmitScore)
	v1.Get("/games/:game_id/leaderboard", h.GetLeaderboard)
	v1.Get("/games/:game_id/users/:user_id/context", h.GetUserContext)
	app.Get("/healthz", h.Healthz)
	app.Get("/readyz", h.Readyz)
	return app
}

func postScore(app *fiber.App, gameID, body string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, "/v1/games/"+gameID+"/scores", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	return resp
}

func get(app *fiber.App, path string) *http.Response {
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func decode(resp *http.Response, out interface{}) {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	_ = json.Unmarshal(body, out)
}

func errorCode(resp *http.Response) string {
	var envelope models.ErrorResponse
	decode(resp, &envelope)
	return envelope.Error.Code
}

func TestSubmitScoreRoute(t *testing.T) {
	Convey("Given the leaderboard API", t, func() {
		app := newTestApp(repository.NewMemoryStore())

		Convey("When a valid score is posted", func() {
			resp := postScore(app, "chess", `{"user_id":"alice","score":100}`)

			Convey("Then the post-write ranked entry is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var result models.ScoreResult
				decode(resp, &result)
				So(result, ShouldResemble, models.ScoreResult{
					GameID: "chess", UserID: "alice", Score: 100, Rank: 1,
				})
			})
		})

		Convey("When a zero score is posted", func() {
			resp := postScore(app, "chess", `{"user_id":"alice","score":0}`)

			Convey("Then it is accepted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When mode is omitted", func() {
			postScore(app, "chess", `{"user_id":"alice","score":100}`)
			resp := postScore(app, "chess", `{"user_id":"alice","score":40}`)

			Convey("Then best mode applies and the lower score is ignored", func() {
				var result models.ScoreResult
				decode(resp, &result)
				So(result.Score, ShouldEqual, 100)
			})
		})

		Convey("When latest mode is requested", func() {
			postScore(app, "chess", `{"user_id":"alice","score":100}`)
			resp := postScore(app, "chess", `{"user_id":"alice","score":40,"mode":"latest"}`)

			Convey("Then the score is overwritten", func() {
				var result models.ScoreResult
				decode(resp, &result)
				So(result.Score, ShouldEqual, 40)
			})
		})

		Convey("When the payload is invalid", func() {
			cases := map[string]string{
				"missing user_id": `{"score":100}`,
				"bad identifier":  `{"user_id":"no spaces!","score":100}`,
				"score too large": `{"user_id":"alice","score":2000000001}`,
				"negative score":  `{"user_id":"alice","score":-5}`,
				"unknown mode":    `{"user_id":"alice","score":100,"mode":"median"}`,
				"not json":        `scores!`,
			}

			for name, body := range cases {
				Convey("Then "+name+" yields a structured 400", func() {
					resp := postScore(app, "chess", body)
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(errorCode(resp), ShouldEqual, handlers.CodeValidation)
				})
			}
		})

		Convey("When the game id violates the identifier pattern", func() {
			resp := postScore(app, "bad%20game", `{"user_id":"alice","score":100}`)

			Convey("Then the request is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(errorCode(resp), ShouldEqual, handlers.CodeValidation)
			})
		})
	})
}

func TestLeaderboardRoute(t *testing.T) {
	Convey("Given three submitted scores", t, func() {
		app := newTestApp(repository.NewMemoryStore())
		postScore(app, "chess", `{"user_id":"bob","score":150}`)
		postScore(app, "chess", `{"user_id":"cara","score":120}`)
		postScore(app, "chess", `{"user_id":"alice","score":100}`)

		Convey("When the leaderboard is fetched with limit 10", func() {
			resp := get(app, "/v1/games/chess/leaderboard?limit=10&offset=0")

			Convey("Then ranked results come back in order", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var page models.LeaderboardResponse
				decode(resp, &page)
				So(page.GameID, ShouldEqual, "chess")
				So(page.Limit, ShouldEqual, 10)
				So(page.Results, ShouldResemble, []models.RankedUser{
					{Rank: 1, UserID: "bob", Score: 150},
					{Rank: 2, UserID: "cara", Score: 120},
					{Rank: 3, UserID: "alice", Score: 100},
				})
			})
		})

		Convey("When limit and offset are omitted", func() {
			resp := get(app, "/v1/games/chess/leaderboard")

			Convey("Then defaults of 10 and 0 apply", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var page models.LeaderboardResponse
				decode(resp, &page)
				So(page.Limit, ShouldEqual, 10)
				So(page.Offset, ShouldEqual, 0)
			})
		})

		Convey("When the limit is not an allowed page size", func() {
			for _, q := range []string{"limit=50", "limit=0", "limit=-10", "limit=abc"} {
				resp := get(app, "/v1/games/chess/leaderboard?"+q)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(errorCode(resp), ShouldEqual, handlers.CodeValidation)
			}
		})

		Convey("When the offset is negative", func() {
			resp := get(app, "/v1/games/chess/leaderboard?limit=10&offset=-1")

			Convey("Then the request is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the offset is past the index end", func() {
			resp := get(app, "/v1/games/chess/leaderboard?limit=10&offset=500")

			Convey("Then an empty page is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var page models.LeaderboardResponse
				decode(resp, &page)
				So(page.Results, ShouldBeEmpty)
			})
		})
	})
}

func TestUserContextRoute(t *testing.T) {
	Convey("Given five ranked users", t, func() {
		app := newTestApp(repository.NewMemoryStore())
		for _, s := range []string{
			`{"user_id":"alice","score":300}`,
			`{"user_id":"bob","score":250}`,
			`{"user_id":"cara","score":200}`,
			`{"user_id":"dan","score":150}`,
			`{"user_id":"emma","score":100}`,
		} {
			postScore(app, "chess", s)
		}

		Convey("When the middle user's context is fetched with window 2", func() {
			resp := get(app, "/v1/games/chess/users/cara/context?window=2")

			Convey("Then neighbors above and below are returned with ranks", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var result models.UserContextResponse
				decode(resp, &result)
				So(result.User, ShouldResemble, models.RankedUser{Rank: 3, UserID: "cara", Score: 200})
				So(result.Above, ShouldHaveLength, 2)
				So(result.Above[0].UserID, ShouldEqual, "alice")
				So(result.Below, ShouldHaveLength, 2)
				So(result.Below[1].UserID, ShouldEqual, "emma")
			})
		})

		Convey("When window is omitted", func() {
			resp := get(app, "/v1/games/chess/users/cara/context")

			Convey("Then the default window of 2 applies", func() {
				var result models.UserContextResponse
				decode(resp, &result)
				So(result.Above, ShouldHaveLength, 2)
				So(result.Below, ShouldHaveLength, 2)
			})
		})

		Convey("When the window is out of range", func() {
			for _, q := range []string{"window=-1", "window=26", "window=abc"} {
				resp := get(app, "/v1/games/chess/users/cara/context?"+q)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(errorCode(resp), ShouldEqual, handlers.CodeValidation)
			}
		})

		Convey("When the user has no score", func() {
			resp := get(app, "/v1/games/chess/users/zoe/context")

			Convey("Then a 404 with USER_NOT_FOUND is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				So(errorCode(resp), ShouldEqual, handlers.CodeUserNotFound)
			})
		})
	})
}

func TestProbes(t *testing.T) {
	Convey("Given a healthy service", t, func() {
		app := newTestApp(repository.NewMemoryStore())

		Convey("Then healthz reports ok", func() {
			resp := get(app, "/healthz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var status models.StatusResponse
			decode(resp, &status)
			So(status.Status, ShouldEqual, "ok")
		})

		Convey("And readyz reports ok", func() {
			resp := get(app, "/readyz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})

	Convey("Given an unreachable score store", t, func() {
		app := newTestApp(&downStore{repository.NewMemoryStore()})

		Convey("Then readyz reports the store outage", func() {
			resp := get(app, "/readyz")
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			So(errorCode(resp), ShouldEqual, handlers.CodeRedisUnavailable)
		})

		Convey("But healthz still reports process liveness", func() {
			resp := get(app, "/healthz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}
