package status

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"
	"github.com/webtor-io/lazymap"

	"github.com/markoprodanovic/one-piece-tracker/models"
)

const (
	cacheExpireFlag = "status-cache-expire"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.DurationFlag{
			Name:   cacheExpireFlag,
			Usage:  "status response cache expiration time",
			Value:  time.Minute,
			EnvVar: "STATUS_CACHE_EXPIRE",
		},
	)
}

// store is the slice of the episode table the monitoring surface reads.
type store interface {
	Health(ctx context.Context) error
	Stats(ctx context.Context) (*models.EpisodeStats, error)
	Recent(ctx context.Context) ([]models.Episode, error)
	Episode(ctx context.Context, id int) (*models.Episode, error)
}

type pgStore struct {
	pg *cs.PG
}

func (s *pgStore) Health(ctx context.Context) error {
	db := s.pg.Get()
	if db == nil {
		return errors.New("database connection not available")
	}
	return db.Ping(ctx)
}

func (s *pgStore) Stats(ctx context.Context) (*models.EpisodeStats, error) {
	db := s.pg.Get()
	if db == nil {
		return nil, errors.New("database connection not available")
	}
	return models.GetEpisodeStats(ctx, db)
}

func (s *pgStore) Recent(ctx context.Context) ([]models.Episode, error) {
	db := s.pg.Get()
	if db == nil {
		return nil, errors.New("database connection not available")
	}
	return models.GetRecentEpisodes(ctx, db, models.RecentEpisodesLimit)
}

func (s *pgStore) Episode(ctx context.Context, id int) (*models.Episode, error) {
	db := s.pg.Get()
	if db == nil {
		return nil, errors.New("database connection not available")
	}
	return models.GetEpisodeByID(ctx, db, id)
}

// Handler exposes a read-only monitoring surface over the episode
// table. Reads go through lazymap so a scrape storm hits the database
// at most once per expiration window.
type Handler struct {
	st         store
	statsMap   *lazymap.LazyMap[*models.EpisodeStats]
	recentMap  *lazymap.LazyMap[[]models.Episode]
	episodeMap *lazymap.LazyMap[*models.Episode]
}

func RegisterHandler(c *cli.Context, r *gin.Engine, pg *cs.PG) {
	h := newHandler(c.Duration(cacheExpireFlag), &pgStore{pg: pg})
	h.registerRoutes(r)
}

func newHandler(expire time.Duration, st store) *Handler {
	return &Handler{
		st: st,
		statsMap: lazymap.New[*models.EpisodeStats](&lazymap.Config{
			Expire:      expire,
			ErrorExpire: 10 * time.Second,
		}),
		recentMap: lazymap.New[[]models.Episode](&lazymap.Config{
			Expire:      expire,
			ErrorExpire: 10 * time.Second,
		}),
		episodeMap: lazymap.New[*models.Episode](&lazymap.Config{
			Expire:      expire,
			ErrorExpire: 10 * time.Second,
		}),
	}
}

func (s *Handler) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", s.healthz)
	r.GET("/api/stats", s.stats)
	r.GET("/api/episodes/recent", s.recent)
	r.GET("/api/episodes/:id", s.episode)
}

func (s *Handler) healthz(c *gin.Context) {
	if err := s.st.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Handler) stats(c *gin.Context) {
	stats, err := s.statsMap.Get("stats", func() (*models.EpisodeStats, error) {
		return s.st.Stats(c.Request.Context())
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Handler) recent(c *gin.Context) {
	episodes, err := s.recentMap.Get("recent", func() ([]models.Episode, error) {
		return s.st.Recent(c.Request.Context())
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, episodes)
}

func (s *Handler) episode(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid episode id"})
		return
	}
	episode, err := s.episodeMap.Get(c.Param("id"), func() (*models.Episode, error) {
		return s.st.Episode(c.Request.Context(), id)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if episode == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
		return
	}
	c.JSON(http.StatusOK, episode)
}
