package arena

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"coinrush/internal/config"
	"coinrush/internal/wallet"
)

var (
	ErrTournamentNotFound = errors.New("arena: tournament not found")
	ErrTournamentFull     = errors.New("arena: tournament is full")
	ErrTournamentClosed   = errors.New("arena: tournament is closed")
	ErrAlreadyJoined      = errors.New("arena: already joined this tournament")
)

type TournamentStatus string

const (
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentActive    TournamentStatus = "active"
	TournamentCompleted TournamentStatus = "completed"
)

// completed editions stay listed by id for this long.
const tournamentRetention = 7 * 24 * time.Hour

// Prize is the payout for a final placement: 200, 100 and 50 for the podium,
// 25 through tenth place and 5 for everyone else, plus 50 for a best score
// of 500 and another 100 from 1000.
func Prize(rank int, score int64) int64 {
	var p int64
	switch {
	case rank == 1:
		p = 200
	case rank == 2:
		p = 100
	case rank == 3:
		p = 50
	case rank <= 10:
		p = 25
	default:
		p = 5
	}
	if score >= 500 {
		p += 50
	}
	if score >= 1000 {
		p += 100
	}
	return p
}

// Placement is one entrant's final standing.
type Placement struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Score   int64  `json:"score"`
	Prize   int64  `json:"prize"`
	PrizeTx string `json:"prize_tx,omitempty"`
}

// Tournament is the public view of one edition.
type Tournament struct {
	ID         string           `json:"id"`
	Series     string           `json:"series"`
	Name       string           `json:"name"`
	Mode       config.ModeID    `json:"mode"`
	EntryFee   int64            `json:"entry_fee"`
	PrizePool  int64            `json:"prize_pool"`
	MaxPlayers int              `json:"max_players"`
	Players    int              `json:"current_players"`
	StartsAt   time.Time        `json:"start_time"`
	EndsAt     time.Time        `json:"end_time"`
	Status     TournamentStatus `json:"status"`
	Standings  []Placement      `json:"standings,omitempty"`
}

type entrant struct {
	wallet   wallet.Wallet
	joinedAt time.Time
	best     int64
	paid     bool
}

type tournament struct {
	spec      config.TournamentSpec
	id        string
	edition   int
	startsAt  time.Time
	endsAt    time.Time
	entrants  map[string]*entrant
	settled   bool
	standings []Placement
}

func (t *tournament) status(now time.Time) TournamentStatus {
	switch {
	case t.settled || !now.Before(t.endsAt):
		return TournamentCompleted
	case now.Before(t.startsAt):
		return TournamentUpcoming
	default:
		return TournamentActive
	}
}

func (t *tournament) view(now time.Time) Tournament {
	players := 0
	for _, e := range t.entrants {
		if e.paid {
			players++
		}
	}
	return Tournament{
		ID:         t.id,
		Series:     t.spec.ID,
		Name:       t.spec.Name,
		Mode:       t.spec.Mode,
		EntryFee:   t.spec.EntryFee,
		PrizePool:  t.spec.PrizePool,
		MaxPlayers: t.spec.MaxPlayers,
		Players:    players,
		StartsAt:   t.startsAt,
		EndsAt:     t.endsAt,
		Status:     t.status(now),
		Standings:  append([]Placement(nil), t.standings...),
	}
}

// rank orders paid entrants by best score, earlier entry first on ties, and
// assigns prizes until the pool runs out.
func (t *tournament) rank() []Placement {
	var list []*entrant
	for _, e := range t.entrants {
		if e.paid {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].best != list[j].best {
			return list[i].best > list[j].best
		}
		return list[i].joinedAt.Before(list[j].joinedAt)
	})
	pool := t.spec.PrizePool
	out := make([]Placement, len(list))
	for i, e := range list {
		prize := min(Prize(i+1, e.best), pool)
		pool -= prize
		out[i] = Placement{Rank: i + 1, Address: e.wallet.String(), Score: e.best, Prize: prize}
	}
	return out
}

type tournaments struct {
	mu   sync.Mutex
	byID map[string]*tournament
}

func newTournaments() *tournaments {
	return &tournaments{byID: make(map[string]*tournament)}
}

func (ts *tournaments) addLocked(spec config.TournamentSpec, edition int, startsAt time.Time) *tournament {
	t := &tournament{
		spec:     spec,
		id:       fmt.Sprintf("%s-%d", spec.ID, edition),
		edition:  edition,
		startsAt: startsAt,
		endsAt:   startsAt.Add(spec.Duration),
		entrants: make(map[string]*entrant),
	}
	ts.byID[t.id] = t
	return t
}

// CreateTournament schedules the first edition of spec at startsAt.
func (a *Arena) CreateTournament(spec config.TournamentSpec, startsAt time.Time) (Tournament, error) {
	if err := spec.Validate(a.opts.Cfg.Modes); err != nil {
		return Tournament{}, err
	}
	ts := a.tournaments
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.byID {
		if t.spec.ID == spec.ID {
			return Tournament{}, fmt.Errorf("arena: tournament series %q already scheduled", spec.ID)
		}
	}
	t := ts.addLocked(spec, 1, startsAt)
	log.Printf("arena: tournament %s scheduled %s - %s", t.id, t.startsAt.Format(time.RFC3339), t.endsAt.Format(time.RFC3339))
	return t.view(a.opts.Now()), nil
}

// Tournaments lists the editions that are not completed yet, soonest first.
func (a *Arena) Tournaments() []Tournament {
	now := a.opts.Now()
	ts := a.tournaments
	ts.mu.Lock()
	out := make([]Tournament, 0, len(ts.byID))
	for _, t := range ts.byID {
		if t.status(now) != TournamentCompleted {
			out = append(out, t.view(now))
		}
	}
	ts.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (a *Arena) Tournament(id string) (Tournament, bool) {
	ts := a.tournaments
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.byID[id]
	if !ok {
		return Tournament{}, false
	}
	return t.view(a.opts.Now()), true
}

// JoinTournament charges the entry fee and seats the wallet. The seat is
// held while the payment confirms and given back if it fails.
func (a *Arena) JoinTournament(ctx context.Context, id, address, adapter string) (Tournament, wallet.Transaction, error) {
	w, err := wallet.Connect(address, adapter)
	if err != nil {
		return Tournament{}, wallet.Transaction{}, err
	}
	if !w.Connected {
		return Tournament{}, wallet.Transaction{}, wallet.ErrWalletNotConnected
	}
	key := w.String()

	ts := a.tournaments
	ts.mu.Lock()
	t, ok := ts.byID[id]
	switch {
	case !ok:
		ts.mu.Unlock()
		return Tournament{}, wallet.Transaction{}, fmt.Errorf("%w: %q", ErrTournamentNotFound, id)
	case t.status(a.opts.Now()) == TournamentCompleted:
		ts.mu.Unlock()
		return Tournament{}, wallet.Transaction{}, ErrTournamentClosed
	case t.entrants[key] != nil:
		ts.mu.Unlock()
		return Tournament{}, wallet.Transaction{}, ErrAlreadyJoined
	case len(t.entrants) >= t.spec.MaxPlayers:
		ts.mu.Unlock()
		return Tournament{}, wallet.Transaction{}, ErrTournamentFull
	}
	seat := &entrant{wallet: w, joinedAt: a.opts.Now()}
	t.entrants[key] = seat
	fee := t.spec.EntryFee
	ts.mu.Unlock()

	start := time.Now()
	tx, err := a.opts.Chain.PayTournamentEntry(ctx, w, id, fee)
	if tx.ID != "" {
		a.opts.Metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
	}

	ts.mu.Lock()
	if err != nil {
		delete(t.entrants, key)
		ts.mu.Unlock()
		return Tournament{}, tx, err
	}
	if t.settled {
		delete(t.entrants, key)
		ts.mu.Unlock()
		a.refund(ctx, w, tx)
		return Tournament{}, tx, ErrTournamentClosed
	}
	defer ts.mu.Unlock()
	seat.paid = true
	a.opts.Metrics.TournamentJoined(t.spec.ID)
	log.Printf("arena: %s joined tournament %s (%d/%d)", w, id, len(t.entrants), t.spec.MaxPlayers)
	return t.view(a.opts.Now()), tx, nil
}

// recordTournamentScore keeps the best valid score for every running
// edition of mode the wallet has joined.
func (a *Arena) recordTournamentScore(address string, mode config.ModeID, score int64, at time.Time) {
	ts := a.tournaments
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.byID {
		if t.spec.Mode != mode || t.settled || at.Before(t.startsAt) || !at.Before(t.endsAt) {
			continue
		}
		if e := t.entrants[address]; e != nil && e.paid && score > e.best {
			e.best = score
		}
	}
}

// settleTournaments closes editions whose window has passed, schedules
// their successors and pays prizes off the caller's goroutine.
func (a *Arena) settleTournaments(now time.Time) {
	type payout struct {
		t         *tournament
		standings []Placement
		wallets   map[string]wallet.Wallet
	}
	var due []payout

	ts := a.tournaments
	ts.mu.Lock()
	for id, t := range ts.byID {
		if t.settled {
			if now.Sub(t.endsAt) > tournamentRetention {
				delete(ts.byID, id)
			}
			continue
		}
		if now.Before(t.endsAt) {
			continue
		}
		t.settled = true
		t.standings = t.rank()
		wallets := make(map[string]wallet.Wallet, len(t.entrants))
		for addr, e := range t.entrants {
			wallets[addr] = e.wallet
		}
		due = append(due, payout{t: t, standings: append([]Placement(nil), t.standings...), wallets: wallets})

		if every := t.spec.Every; every > 0 {
			next := t.startsAt.Add(every)
			for !next.Add(t.spec.Duration).After(now) {
				next = next.Add(every)
			}
			n := ts.addLocked(t.spec, t.edition+1, next)
			log.Printf("arena: tournament %s scheduled %s", n.id, n.startsAt.Format(time.RFC3339))
		}
	}
	ts.mu.Unlock()

	for _, p := range due {
		log.Printf("arena: tournament %s completed with %d players", p.t.id, len(p.standings))
		a.wg.Add(1)
		go a.payTournament(p.t, p.standings, p.wallets)
	}
}

func (a *Arena) payTournament(t *tournament, standings []Placement, wallets map[string]wallet.Wallet) {
	defer a.wg.Done()
	for i, pl := range standings {
		if pl.Prize > 0 {
			start := time.Now()
			tx, err := a.opts.Chain.ClaimPrize(a.ctx, wallets[pl.Address], t.id, pl.Prize)
			if tx.ID != "" {
				a.opts.Metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
			}
			if err != nil {
				log.Printf("arena: tournament %s prize for %s: %v", t.id, pl.Address, err)
				continue
			}
			a.opts.Metrics.TournamentPrize(t.spec.ID, pl.Prize)
			a.tournaments.mu.Lock()
			t.standings[i].PrizeTx = tx.ID
			a.tournaments.mu.Unlock()
		}
		if err := a.opts.Store.RecordPlacement(a.ctx, pl.Address, pl.Rank, pl.Prize); err != nil {
			log.Printf("arena: tournament %s placement for %s: %v", t.id, pl.Address, err)
		}
	}
}
