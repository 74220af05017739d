package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"leaderboard/internal/models"
	"leaderboard/internal/repository"
	"leaderboard/internal/service"

	. "github.com/smartystreets/goconvey/convey"
)

// forgetfulStore accepts writes but claims the member is absent on the
// post-write rank lookup, which is exactly the contract violation
// SubmitScore must surface as an inconsistent write.
type forgetfulStore struct {
	*repository.MemoryStore
}

func (f *forgetfulStore) GetReverseRank(ctx context.Context, gameID, userID string) (int64, error) {
	return 0, repository.ErrNotFound
}

func TestSubmitScore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ranking engine over an empty index", t, func() {
		store := repository.NewMemoryStore()
		svc := service.NewLeaderboardService(store, nil)

		Convey("When a first score is submitted in best mode", func() {
			ranked, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)

			Convey("Then the entry is created with rank 1", func() {
				So(err, ShouldBeNil)
				So(ranked.UserID, ShouldEqual, "alice")
				So(ranked.Score, ShouldEqual, 100)
				So(ranked.Rank, ShouldEqual, 1)
			})
		})

		Convey("When best mode receives a lower score after a higher one", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)
			So(err, ShouldBeNil)
			ranked, err := svc.SubmitScore(ctx, "game1", "alice", 90, models.ModeBest)

			Convey("Then the higher score is kept and no error is raised", func() {
				So(err, ShouldBeNil)
				So(ranked.Score, ShouldEqual, 100)
			})
		})

		Convey("When best mode receives an equal score", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)
			So(err, ShouldBeNil)
			ranked, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)

			Convey("Then the submission is a silent no-op", func() {
				So(err, ShouldBeNil)
				So(ranked.Score, ShouldEqual, 100)
			})
		})

		Convey("When best mode receives a higher score", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)
			So(err, ShouldBeNil)
			ranked, err := svc.SubmitScore(ctx, "game1", "alice", 120, models.ModeBest)

			Convey("Then the score is updated", func() {
				So(err, ShouldBeNil)
				So(ranked.Score, ShouldEqual, 120)
			})
		})

		Convey("When latest mode overwrites with a lower score", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)
			So(err, ShouldBeNil)
			_, err = svc.SubmitScore(ctx, "game1", "alice", 120, models.ModeBest)
			So(err, ShouldBeNil)
			ranked, err := svc.SubmitScore(ctx, "game1", "alice", 80, models.ModeLatest)

			Convey("Then the stored score is the most recent value", func() {
				So(err, ShouldBeNil)
				So(ranked.Score, ShouldEqual, 80)
			})
		})

		Convey("When a sequence of best submissions is applied", func() {
			submitted := []int64{40, 900, 13, 600, 900, 2}
			var max int64
			for _, score := range submitted {
				_, err := svc.SubmitScore(ctx, "game1", "bob", score, models.ModeBest)
				So(err, ShouldBeNil)
				if score > max {
					max = score
				}
			}

			Convey("Then the stored score is the maximum submitted", func() {
				score, err := store.GetScore(ctx, "game1", "bob")
				So(err, ShouldBeNil)
				So(score, ShouldEqual, max)
			})
		})

		Convey("When the same user scores in two games", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)
			So(err, ShouldBeNil)
			_, err = svc.SubmitScore(ctx, "game2", "alice", 7, models.ModeBest)
			So(err, ShouldBeNil)

			Convey("Then the indices are independent per game", func() {
				one, err := store.GetScore(ctx, "game1", "alice")
				So(err, ShouldBeNil)
				two, err := store.GetScore(ctx, "game2", "alice")
				So(err, ShouldBeNil)
				So(one, ShouldEqual, 100)
				So(two, ShouldEqual, 7)
			})
		})
	})

	Convey("Given a store that loses the entry after the write", t, func() {
		svc := service.NewLeaderboardService(&forgetfulStore{repository.NewMemoryStore()}, nil)

		Convey("When a score is submitted", func() {
			_, err := svc.SubmitScore(ctx, "game1", "alice", 100, models.ModeBest)

			Convey("Then the engine reports an inconsistent write", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, service.ErrInconsistentWrite), ShouldBeTrue)
			})
		})
	})
}

func TestGetLeaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given three users with distinct scores", t, func() {
		store := repository.NewMemoryStore()
		svc := service.NewLeaderboardService(store, nil)

		for _, sub := range []struct {
			user  string
			score int64
		}{
			{"cara", 120},
			{"alice", 100},
			{"bob", 150},
		} {
			_, err := svc.SubmitScore(ctx, "game1", sub.user, sub.score, models.ModeBest)
			So(err, ShouldBeNil)
		}

		Convey("When the first page is fetched", func() {
			results, err := svc.GetLeaderboard(ctx, "game1", 10, 0)

			Convey("Then users come back in descending score order with ranks 1..N", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 3)
				So(results[0], ShouldResemble, models.RankedUser{Rank: 1, UserID: "bob", Score: 150})
				So(results[1], ShouldResemble, models.RankedUser{Rank: 2, UserID: "cara", Score: 120})
				So(results[2], ShouldResemble, models.RankedUser{Rank: 3, UserID: "alice", Score: 100})
			})
		})

		Convey("When a page starts mid-index", func() {
			results, err := svc.GetLeaderboard(ctx, "game1", 10, 1)

			Convey("Then ranks stay contiguous starting at offset+1", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].Rank, ShouldEqual, 2)
				So(results[0].UserID, ShouldEqual, "cara")
				So(results[1].Rank, ShouldEqual, 3)
			})
		})

		Convey("When the offset is past the end of the index", func() {
			results, err := svc.GetLeaderboard(ctx, "game1", 10, 50)

			Convey("Then the page is empty, not an error", func() {
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
			})
		})
	})

	Convey("Given users with tied scores", t, func() {
		store := repository.NewMemoryStore()
		svc := service.NewLeaderboardService(store, nil)

		for _, user := range []string{"mallory", "alice", "zed"} {
			_, err := svc.SubmitScore(ctx, "game1", user, 500, models.ModeBest)
			So(err, ShouldBeNil)
		}

		Convey("When the leaderboard is fetched repeatedly", func() {
			first, err := svc.GetLeaderboard(ctx, "game1", 10, 0)
			So(err, ShouldBeNil)
			second, err := svc.GetLeaderboard(ctx, "game1", 10, 0)
			So(err, ShouldBeNil)

			Convey("Then tie order is deterministic: descending lexicographic user id", func() {
				So(first, ShouldResemble, second)
				So(first[0].UserID, ShouldEqual, "zed")
				So(first[1].UserID, ShouldEqual, "mallory")
				So(first[2].UserID, ShouldEqual, "alice")
			})
		})
	})
}

func TestGetUserContext(t *testing.T) {
	ctx := context.Background()

	// alice..emma at 300..100 puts cara exactly mid-index.
	seed := []struct {
		user  string
		score int64
	}{
		{"alice", 300},
		{"bob", 250},
		{"cara", 200},
		{"dan", 150},
		{"emma", 100},
	}

	Convey("Given five ranked users", t, func() {
		store := repository.NewMemoryStore()
		svc := service.NewLeaderboardService(store, nil)
		for _, sub := range seed {
			_, err := svc.SubmitScore(ctx, "game1", sub.user, sub.score, models.ModeBest)
			So(err, ShouldBeNil)
		}

		Convey("When context is fetched for the middle user with window 2", func() {
			result, err := svc.GetUserContext(ctx, "game1", "cara", 2)

			Convey("Then both sides are full with contiguous ranks", func() {
				So(err, ShouldBeNil)
				So(result.User, ShouldResemble, models.RankedUser{Rank: 3, UserID: "cara", Score: 200})
				So(result.Above, ShouldResemble, []models.RankedUser{
					{Rank: 1, UserID: "alice", Score: 300},
					{Rank: 2, UserID: "bob", Score: 250},
				})
				So(result.Below, ShouldResemble, []models.RankedUser{
					{Rank: 4, UserID: "dan", Score: 150},
					{Rank: 5, UserID: "emma", Score: 100},
				})
			})
		})

		Convey("When context is fetched for the rank-1 user", func() {
			result, err := svc.GetUserContext(ctx, "game1", "alice", 2)

			Convey("Then above is empty and below is full", func() {
				So(err, ShouldBeNil)
				So(result.Above, ShouldBeEmpty)
				So(result.Below, ShouldHaveLength, 2)
				So(result.Below[0].UserID, ShouldEqual, "bob")
				So(result.Below[1].UserID, ShouldEqual, "cara")
			})
		})

		Convey("When context is fetched for the bottom user", func() {
			result, err := svc.GetUserContext(ctx, "game1", "emma", 2)

			Convey("Then below is empty and above is truncated to the window", func() {
				So(err, ShouldBeNil)
				So(result.Below, ShouldBeEmpty)
				So(result.Above, ShouldResemble, []models.RankedUser{
					{Rank: 3, UserID: "cara", Score: 200},
					{Rank: 4, UserID: "dan", Score: 150},
				})
			})
		})

		Convey("When the window is zero", func() {
			result, err := svc.GetUserContext(ctx, "game1", "cara", 0)

			Convey("Then only the user's own entry is returned", func() {
				So(err, ShouldBeNil)
				So(result.User.Rank, ShouldEqual, 3)
				So(result.Above, ShouldBeEmpty)
				So(result.Below, ShouldBeEmpty)
			})
		})

		Convey("When the window exceeds the index size", func() {
			result, err := svc.GetUserContext(ctx, "game1", "cara", 25)

			Convey("Then each side holds every existing neighbor", func() {
				So(err, ShouldBeNil)
				So(result.Above, ShouldHaveLength, 2)
				So(result.Below, ShouldHaveLength, 2)
			})
		})

		Convey("When context is fetched for an unknown user", func() {
			_, err := svc.GetUserContext(ctx, "game1", "zoe", 2)

			Convey("Then the engine reports the user as not found", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, service.ErrUserNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a larger index, the window arithmetic holds at every position", t, func() {
		store := repository.NewMemoryStore()
		svc := service.NewLeaderboardService(store, nil)

		const n = 30
		const w = 4
		for i := 0; i < n; i++ {
			user := fmt.Sprintf("user_%02d", i)
			_, err := svc.SubmitScore(ctx, "game1", user, int64(1000-i), models.ModeBest)
			So(err, ShouldBeNil)
		}

		for p := 0; p < n; p++ {
			user := fmt.Sprintf("user_%02d", p)
			result, err := svc.GetUserContext(ctx, "game1", user, w)
			So(err, ShouldBeNil)

			wantAbove := p
			if wantAbove > w {
				wantAbove = w
			}
			wantBelow := n - 1 - p
			if wantBelow > w {
				wantBelow = w
			}

			So(result.User.Rank, ShouldEqual, p+1)
			So(result.Above, ShouldHaveLength, wantAbove)
			So(result.Below, ShouldHaveLength, wantBelow)
			if wantAbove > 0 {
				So(result.Above[wantAbove-1].Rank, ShouldEqual, p)
			}
			if wantBelow > 0 {
				So(result.Below[0].Rank, ShouldEqual, p+2)
			}
		}
	})
}

func TestPing(t *testing.T) {
	Convey("Given an engine over a reachable store", t, func() {
		svc := service.NewLeaderboardService(repository.NewMemoryStore(), nil)

		Convey("Then Ping succeeds", func() {
			So(svc.Ping(context.Background()), ShouldBeNil)
		})
	})
}
