package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coinrush/internal/arena"
	"coinrush/internal/config"
	"coinrush/internal/game"
	"coinrush/internal/leaderboard"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

// Entry and daily-bonus payments settle with a simulated delay, so paid
// routes get more room than the request context might allow.
const paymentTimeout = 30 * time.Second

type openRequest struct {
	Address string  `json:"address" binding:"required"`
	Adapter string  `json:"adapter"`
	Mode    string  `json:"mode" binding:"required"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

type openResponse struct {
	SessionID string             `json:"session_id"`
	Ticket    string             `json:"ticket"`
	ExpiresAt time.Time          `json:"expires_at"`
	StreamURL string             `json:"stream_url"`
	Mode      config.Mode        `json:"mode"`
	Info      arena.Info         `json:"session"`
	EntryTx   wallet.Transaction `json:"entry_tx"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.Health(c.Request.Context()))
}

func (s *Server) handleModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": s.arena.Modes().List()})
}

func (s *Server) handleNetwork(c *gin.Context) {
	info := s.probe(c.Request.Context(), s.cfg.SolanaRPCURL)
	status := http.StatusOK
	if !info.Reachable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"network": info, "treasury": s.chain.Treasury().String()})
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errs.Abort(c, NewValidationError("address and mode are required", map[string]any{"reason": err.Error()}), nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentTimeout)
	defer cancel()

	room, tx, err := s.arena.Open(ctx, arena.OpenRequest{
		Address: req.Address,
		Adapter: req.Adapter,
		Mode:    config.ModeID(req.Mode),
		Width:   req.Width,
		Height:  req.Height,
	})
	if err != nil {
		var details map[string]any
		if tx.ID != "" {
			details = map[string]any{"transaction": tx}
		}
		s.errs.Abort(c, err, details)
		return
	}

	ticket, exp, err := s.tickets.Issue(room.ID, room.Wallet.String())
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, openResponse{
		SessionID: room.ID,
		Ticket:    ticket,
		ExpiresAt: exp,
		StreamURL: "/ws/play?ticket=" + ticket,
		Mode:      room.Mode,
		Info:      room.Info(),
		EntryTx:   tx,
	})
}

// handleSession returns the live room, or a stored result once the room
// has been swept.
func (s *Server) handleSession(c *gin.Context) {
	id := c.Param("id")
	if room, ok := s.arena.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"session": room.Info()})
		return
	}
	round := 1
	if raw := c.Query("round"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errs.Abort(c, NewValidationError("round must be a positive integer", nil), nil)
			return
		}
		round = n
	}
	res, err := s.store.Result(c.Request.Context(), id, round)
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// authorizedRoom resolves :id and checks the bearer ticket was issued for it.
func (s *Server) authorizedRoom(c *gin.Context) (*arena.Room, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if raw == "" {
		raw = c.Query("ticket")
	}
	tk, err := s.tickets.Parse(raw)
	if err != nil {
		s.errs.Abort(c, err, nil)
		return nil, false
	}
	id := c.Param("id")
	if tk.SessionID != id {
		s.errs.Abort(c, NewForbiddenError("Ticket was issued for another session"), nil)
		return nil, false
	}
	room, ok := s.arena.Get(id)
	if !ok {
		s.errs.Abort(c, arena.ErrNotFound, nil)
		return nil, false
	}
	return room, true
}

func (s *Server) handleExit(c *gin.Context) {
	room, ok := s.authorizedRoom(c)
	if !ok {
		return
	}
	sum, err := room.Exit(c.Request.Context())
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sum})
}

func (s *Server) handleRestart(c *gin.Context) {
	room, ok := s.authorizedRoom(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentTimeout)
	defer cancel()
	tx, err := room.Restart(ctx)
	if err != nil {
		var details map[string]any
		if tx.ID != "" {
			details = map[string]any{"transaction": tx}
		}
		s.errs.Abort(c, err, details)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": room.Info(), "entry_tx": tx})
}

func (s *Server) walletParam(c *gin.Context) (wallet.Wallet, bool) {
	w, err := wallet.Connect(c.Param("address"), c.Query("adapter"))
	if err != nil {
		s.errs.Abort(c, err, nil)
		return wallet.Wallet{}, false
	}
	return w, true
}

func limitParam(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) handleBalance(c *gin.Context) {
	w, ok := s.walletParam(c)
	if !ok {
		return
	}
	bal, err := s.chain.Balance(c.Request.Context(), w)
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": w.String(), "balance": bal})
}

func (s *Server) handleHistory(c *gin.Context) {
	w, ok := s.walletParam(c)
	if !ok {
		return
	}
	txs, err := s.chain.History(c.Request.Context(), w, limitParam(c, 50))
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": w.String(), "transactions": txs})
}

func (s *Server) handleResults(c *gin.Context) {
	w, ok := s.walletParam(c)
	if !ok {
		return
	}
	results, err := s.store.RecentResults(c.Request.Context(), w.String(), limitParam(c, 20))
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": w.String(), "results": results})
}

func (s *Server) handleDaily(c *gin.Context) {
	w, ok := s.walletParam(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentTimeout)
	defer cancel()
	start := time.Now()
	tx, err := s.chain.ClaimDailyBonus(ctx, w)
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	s.metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	mode, ok := s.arena.Modes().Get(config.ModeID(c.Param("mode")))
	if !ok {
		s.errs.Abort(c, arena.ErrUnknownMode, nil)
		return
	}
	frame, err := leaderboard.ParseFrame(c.Query("frame"))
	if err != nil {
		s.errs.Abort(c, NewValidationError(err.Error(), nil), nil)
		return
	}
	ctx := c.Request.Context()
	top, err := s.board.Top(ctx, string(mode.ID), frame, limitParam(c, 10))
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	body := gin.H{"mode": mode.ID, "frame": frame, "entries": top}
	if addr := c.Query("address"); addr != "" {
		rank, score, err := s.board.Rank(ctx, string(mode.ID), frame, addr)
		if err != nil {
			s.errs.Abort(c, err, nil)
			return
		}
		body["you"] = gin.H{"address": addr, "rank": rank, "score": score}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleAchievements(c *gin.Context) {
	list := append([]game.AchievementInfo(nil), game.Catalog...)
	list = append(list, game.AchievementInfo{
		ID:          game.Achievement(store.AchievementTournamentWinner),
		Name:        "Champion",
		Description: "Win a tournament",
		Rarity:      "legendary",
	})
	c.JSON(http.StatusOK, gin.H{"achievements": list})
}

// handlePlayerStats returns the wallet's profile with its current balance.
func (s *Server) handlePlayerStats(c *gin.Context) {
	w, ok := s.walletParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stats, err := s.store.PlayerStats(ctx, w.String())
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	bal, err := s.chain.Balance(ctx, w)
	if err != nil {
		s.errs.Abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "balance": bal})
}

func (s *Server) handleTournaments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tournaments": s.arena.Tournaments()})
}

func (s *Server) handleTournament(c *gin.Context) {
	t, ok := s.arena.Tournament(c.Param("id"))
	if !ok {
		s.errs.Abort(c, arena.ErrTournamentNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tournament": t})
}

type joinRequest struct {
	Address string `json:"address" binding:"required"`
	Adapter string `json:"adapter"`
}

func (s *Server) handleJoinTournament(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errs.Abort(c, NewValidationError("address is required", map[string]any{"reason": err.Error()}), nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentTimeout)
	defer cancel()
	t, tx, err := s.arena.JoinTournament(ctx, c.Param("id"), req.Address, req.Adapter)
	if err != nil {
		var details map[string]any
		if tx.ID != "" {
			details = map[string]any{"transaction": tx}
		}
		s.errs.Abort(c, err, details)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tournament": t, "entry_tx": tx})
}
