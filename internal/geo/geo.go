package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"neighborsos/internal/util"
)

// DefaultBaseURL is the public zip lookup service.
const DefaultBaseURL = "https://api.zippopotam.us"

const earthRadiusMiles = 3959.0

// Point is a geocoded zip code.
type Point struct {
	Lat float64
	Lng float64
}

// Locator geocodes US zip codes and memoizes results for the process
// lifetime; zip coordinates do not move.
type Locator struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	cache map[string]Point
}

func NewLocator(baseURL string) *Locator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Locator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   make(map[string]Point),
	}
}

// Lookup geocodes one zip code.
func (l *Locator) Lookup(ctx context.Context, zip string) (Point, error) {
	l.mu.RLock()
	p, ok := l.cache[zip]
	l.mu.RUnlock()
	if ok {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/us/%s", l.baseURL, zip), nil)
	if err != nil {
		return Point{}, fmt.Errorf("failed to build zip lookup request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("zip lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("zip lookup for %s returned status %d", zip, resp.StatusCode)
	}

	var body struct {
		Places []struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"places"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Point{}, fmt.Errorf("failed to decode zip lookup response: %w", err)
	}
	if len(body.Places) == 0 {
		return Point{}, fmt.Errorf("no places found for zip %s", zip)
	}

	lat, err := strconv.ParseFloat(body.Places[0].Latitude, 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid latitude for zip %s: %w", zip, err)
	}
	lng, err := strconv.ParseFloat(body.Places[0].Longitude, 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid longitude for zip %s: %w", zip, err)
	}

	p = Point{Lat: lat, Lng: lng}
	l.mu.Lock()
	l.cache[zip] = p
	l.mu.Unlock()
	return p, nil
}

// LookupAll geocodes a set of zips concurrently. Zips that fail to
// resolve are simply absent from the result; distance sorting treats
// them as farthest.
func (l *Locator) LookupAll(ctx context.Context, zips []string) map[string]Point {
	seen := make(map[string]struct{}, len(zips))
	unique := make([]string, 0, len(zips))
	for _, z := range zips {
		if z == "" {
			continue
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		unique = append(unique, z)
	}

	var mu sync.Mutex
	points := make(map[string]Point, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, zip := range unique {
		zip := zip
		g.Go(func() error {
			p, err := l.Lookup(gctx, zip)
			if err != nil {
				util.Debug("Zip lookup failed",
					zap.String("zip", zip),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			points[zip] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return points
}

// Distance is the great-circle distance between two points in miles.
func Distance(a, b Point) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SortByDistance orders items by distance from origin. Items whose zip
// did not geocode sort last, in their original relative order.
func SortByDistance[T any](items []T, origin Point, points map[string]Point, zipOf func(T) string) {
	const unknown = math.MaxFloat64

	dist := func(item T) float64 {
		p, ok := points[zipOf(item)]
		if !ok {
			return unknown
		}
		return Distance(origin, p)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return dist(items[i]) < dist(items[j])
	})
}
