package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/errors"
	"github.com/victornm/millionaire/internal/game"
	"github.com/victornm/millionaire/internal/leaderboard"
	"github.com/victornm/millionaire/internal/session"
)

type Config struct {
	Router      gin.IRouter
	Session     *session.Service
	Leaderboard *leaderboard.Service
	// Poller is optional. Reading the leaderboard keeps it polling.
	Poller *leaderboard.Poller
}

type API struct {
	ss     *session.Service
	ls     *leaderboard.Service
	poller *leaderboard.Poller
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		ls:     c.Leaderboard,
		poller: c.Poller,
	}

	v1 := c.Router.Group("/v1")
	v1.GET("/ladder", a.GetLadder)
	v1.GET("/leaderboard", a.GetLeaderboard)

	games := v1.Group("/games")
	games.POST("", a.StartGame)
	games.GET("/:player", a.GetGame)
	games.DELETE("/:player", a.EndGame)
	games.POST("/:player/select", a.SelectOption)
	games.POST("/:player/submit", a.SubmitAnswer)
	games.POST("/:player/lifelines/:lifeline", a.UseLifeline)
	games.POST("/:player/walk-away", a.WalkAway)

	return a
}

type (
	LadderResponse struct {
		Prizes []int64 `json:"prizes"`
	}

	StartGameRequest struct {
		PlayerID  string       `json:"player_id" binding:"required"`
		Username  string       `json:"username" binding:"required"`
		AvatarRef string       `json:"avatar_ref"`
		Team      *domain.Team `json:"team"`
	}

	SelectOptionRequest struct {
		Option *int `json:"option" binding:"required"`
	}

	LifelineResponse struct {
		Applied    bool             `json:"applied"`
		Message    string           `json:"message,omitempty"`
		Disclosure *game.Disclosure `json:"disclosure,omitempty"`
		Game       game.View        `json:"game"`
	}

	WalkAwayResponse struct {
		Result *game.Result `json:"result"`
		Game   game.View    `json:"game"`
	}

	SubmitAnswerResponse struct {
		Evaluation *game.Evaluation `json:"evaluation"`
		Game       game.View        `json:"game"`
	}
)

func (a *API) GetLadder(c *gin.Context) {
	c.JSON(http.StatusOK, LadderResponse{Prizes: game.PrizeLadder[:]})
}

func (a *API) StartGame(c *gin.Context) {
	var req StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Validation("invalid request: %v", err))
		return
	}

	gs, err := a.ss.StartSession(c.Request.Context(), session.StartSessionRequest{
		Player: domain.Player{
			PlayerID:  req.PlayerID,
			Username:  req.Username,
			AvatarRef: req.AvatarRef,
			Team:      req.Team,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gs.View())
}

func (a *API) GetGame(c *gin.Context) {
	gs, ok := a.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gs.View())
}

func (a *API) EndGame(c *gin.Context) {
	err := a.ss.EndSession(c.Request.Context(), session.EndSessionRequest{PlayerID: c.Param("player")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) SelectOption(c *gin.Context) {
	var req SelectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Validation("invalid request: %v", err))
		return
	}

	gs, ok := a.session(c)
	if !ok {
		return
	}

	if err := gs.SelectOption(*req.Option); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gs.View())
}

// SubmitAnswer blocks for the reveal delay before answering.
func (a *API) SubmitAnswer(c *gin.Context) {
	gs, ok := a.session(c)
	if !ok {
		return
	}

	ev, err := gs.SubmitAnswer(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{Evaluation: ev, Game: gs.View()})
}

// UseLifeline answers 200 with applied=false when the lifeline is suppressed in the current state.
func (a *API) UseLifeline(c *gin.Context) {
	l, err := game.ParseLifeline(c.Param("lifeline"))
	if err != nil {
		writeError(c, err)
		return
	}

	gs, ok := a.session(c)
	if !ok {
		return
	}

	d, err := gs.UseLifeline(l)
	if errors.Is(err, errors.CodeFailedPrecondition) {
		c.JSON(http.StatusOK, LifelineResponse{
			Applied: false,
			Message: errors.Convert(err).Message,
			Game:    gs.View(),
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, LifelineResponse{Applied: true, Disclosure: d, Game: gs.View()})
}

func (a *API) WalkAway(c *gin.Context) {
	gs, ok := a.session(c)
	if !ok {
		return
	}

	res, err := gs.WalkAway(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, WalkAwayResponse{Result: res, Game: gs.View()})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	f, err := leaderboard.ParseFilter(c.Query("filter"))
	if err != nil {
		writeError(c, err)
		return
	}

	if a.poller != nil {
		a.poller.Show()
	}

	lb, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Filter:     f,
		Viewer:     c.Query("viewer"),
		ViewerTeam: c.Query("team"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lb)
}

func (a *API) session(c *gin.Context) (*game.Session, bool) {
	gs, err := a.ss.GetSession(c.Request.Context(), session.GetSessionRequest{PlayerID: c.Param("player")})
	if err != nil {
		writeError(c, err)
		return nil, false
	}

	return gs, true
}

type ErrorResponse struct {
	Error *errors.Error `json:"error"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{Error: e})
}
