// Package risk scores proposed transactions before the settlement engine
// executes them. The score is a weighted sum of independent signals; the gate
// is advisory and owns no ledger state. When its own storage is unavailable
// it degrades to "review", never to allow-all or deny-all.
package risk

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tiketi/internal/repositories"
	"tiketi/internal/repositories/cache"

	"github.com/sirupsen/logrus"
)

// Signal weights; each signal contributes up to its weight, the total caps
// at 100.
const (
	weightVelocity  = 25
	weightAmount    = 25
	weightGeo       = 20
	weightDevice    = 15
	weightRecipient = 15
)

const (
	velocityWindow     = time.Hour
	velocityCountLimit = 10   // transactions per hour before maxing the signal
	deviceWalletLimit  = 4    // wallets per device before maxing the signal
	amountHistoryDays  = 30   // lookback for the historical average
	maxPlausibleSpeed  = 900.0 // km/h between consecutive transaction locations
)

// Service scores transactions.
type Service interface {
	Score(ctx context.Context, tc Context) Assessment
}

type service struct {
	repo  repositories.WalletRepository
	cache *cache.CacheService
	log   *logrus.Logger
}

// NewService creates a new risk gate.
func NewService(repo repositories.WalletRepository, cacheSvc *cache.CacheService, log *logrus.Logger) Service {
	if repo == nil {
		panic("repo is required")
	}
	if log == nil {
		log = logrus.New()
	}
	return &service{repo: repo, cache: cacheSvc, log: log}
}

func (s *service) Score(ctx context.Context, tc Context) Assessment {
	signals := make(map[string]int)
	degraded := false

	record := func(name string, value int, err error) {
		if err != nil {
			degraded = true
			s.log.WithError(err).WithField("signal", name).Warn("risk signal unavailable")
			return
		}
		signals[name] = value
	}

	v, err := s.velocitySignal(ctx, tc)
	record("velocity", v, err)

	a, err := s.amountSignal(ctx, tc)
	record("amount_anomaly", a, err)

	g, err := s.geoSignal(ctx, tc)
	record("geo_anomaly", g, err)

	d, err := s.deviceSignal(ctx, tc)
	record("device_reuse", d, err)

	r, err := s.recipientSignal(ctx, tc)
	record("recipient_history", r, err)

	score := 0
	for _, v := range signals {
		score += v
	}
	if score > 100 {
		score = 100
	}

	level := levelFor(score)
	action := actionFor(level)
	if degraded && action == ActionAllow {
		// A blind gate still lets money through, but flagged.
		action = ActionReview
		if level == LevelLow {
			level = LevelMedium
		}
	}

	return Assessment{
		Score:    score,
		Level:    level,
		Action:   action,
		Degraded: degraded,
		Signals:  signals,
	}
}

// velocitySignal counts and sums the wallet's movements in the last hour.
func (s *service) velocitySignal(ctx context.Context, tc Context) (int, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("cache unavailable")
	}

	countKey := fmt.Sprintf("risk:velocity:count:%d", tc.WalletID)
	sumKey := fmt.Sprintf("risk:velocity:sum:%d", tc.WalletID)

	count, err := s.cache.IncrementWindow(ctx, countKey, 1, velocityWindow)
	if err != nil {
		return 0, err
	}
	sum, err := s.cache.IncrementWindow(ctx, sumKey, tc.Amount, velocityWindow)
	if err != nil {
		return 0, err
	}

	signal := 0
	if count > velocityCountLimit {
		signal = weightVelocity
	} else {
		signal = int(float64(weightVelocity) * float64(count) / float64(velocityCountLimit+1))
	}
	// A burst of value counts as much as a burst of transactions.
	if avg, err := s.repo.GetAverageDebitAmount(ctx, tc.WalletID, time.Now().AddDate(0, 0, -amountHistoryDays)); err == nil && avg > 0 {
		if float64(sum) > 10*avg {
			signal = weightVelocity
		}
	}
	return signal, nil
}

// amountSignal compares the amount against the wallet's historical average.
func (s *service) amountSignal(ctx context.Context, tc Context) (int, error) {
	avg, err := s.repo.GetAverageDebitAmount(ctx, tc.WalletID, time.Now().AddDate(0, 0, -amountHistoryDays))
	if err != nil {
		return 0, err
	}
	if avg <= 0 {
		// No history: mildly suspicious for large first movements.
		return weightAmount / 5, nil
	}
	ratio := float64(tc.Amount) / avg
	switch {
	case ratio >= 10:
		return weightAmount, nil
	case ratio >= 5:
		return weightAmount * 3 / 4, nil
	case ratio >= 3:
		return weightAmount / 2, nil
	default:
		return 0, nil
	}
}

// geoSignal checks whether the principal could plausibly have travelled from
// the previous transaction's location.
func (s *service) geoSignal(ctx context.Context, tc Context) (int, error) {
	if !tc.HasLocation {
		return 0, nil
	}
	if s.cache == nil {
		return 0, fmt.Errorf("cache unavailable")
	}

	key := fmt.Sprintf("risk:lastloc:%d", tc.WalletID)
	now := time.Now()
	defer s.cache.SetString(ctx, key,
		fmt.Sprintf("%f,%f,%d", tc.Latitude, tc.Longitude, now.Unix()), 24*time.Hour)

	prev, found, err := s.cache.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	parts := strings.Split(prev, ",")
	if len(parts) != 3 {
		return 0, nil
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	ts, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, nil
	}

	elapsed := now.Sub(time.Unix(ts, 0)).Hours()
	if elapsed <= 0 {
		elapsed = 1.0 / 3600
	}
	speed := haversineKm(lat, lon, tc.Latitude, tc.Longitude) / elapsed
	if speed > maxPlausibleSpeed {
		return weightGeo, nil
	}
	return 0, nil
}

// deviceSignal counts distinct wallets seen on the same device and IP.
func (s *service) deviceSignal(ctx context.Context, tc Context) (int, error) {
	if tc.DeviceID == "" && tc.IPAddress == "" {
		return 0, nil
	}
	if s.cache == nil {
		return 0, fmt.Errorf("cache unavailable")
	}

	var worst int64
	if tc.DeviceID != "" {
		n, err := s.cache.AddToSet(ctx, "risk:device:"+tc.DeviceID,
			strconv.FormatUint(uint64(tc.WalletID), 10), 24*time.Hour)
		if err != nil {
			return 0, err
		}
		worst = n
	}
	if tc.IPAddress != "" {
		n, err := s.cache.AddToSet(ctx, "risk:ip:"+tc.IPAddress,
			strconv.FormatUint(uint64(tc.WalletID), 10), 24*time.Hour)
		if err != nil {
			return 0, err
		}
		if n > worst {
			worst = n
		}
	}

	if worst >= deviceWalletLimit {
		return weightDevice, nil
	}
	return 0, nil
}

// recipientSignal looks at fraud reports filed against the recipient.
func (s *service) recipientSignal(ctx context.Context, tc Context) (int, error) {
	if tc.RecipientWalletID == 0 {
		return 0, nil
	}
	reports, err := s.repo.CountRecentFraudReports(ctx, tc.RecipientWalletID, time.Now().AddDate(0, -3, 0))
	if err != nil {
		return 0, err
	}
	switch {
	case reports >= 3:
		return weightRecipient, nil
	case reports > 0:
		return weightRecipient / 2, nil
	default:
		return 0, nil
	}
}

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
