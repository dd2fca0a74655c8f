// Command flightsim feeds synthetic telemetry into a running airspace
// server. Each simulated aircraft flies a straight track at constant speed;
// a fraction of them run silent and a fraction are aimed through the middle
// of the coverage area to exercise the alerting path.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

var (
	server    = flag.String("server", "http://localhost:8080", "Airspace server base URL")
	count     = flag.Int("count", 5, "Number of simulated aircraft")
	interval  = flag.Duration("interval", 5*time.Second, "Delay between telemetry rounds")
	rounds    = flag.Int("rounds", 0, "Number of rounds to send (0 = run until interrupted)")
	centerLat = flag.Float64("lat", 11.65, "Center latitude of the simulated area")
	centerLon = flag.Float64("lon", 78.15, "Center longitude of the simulated area")
	seedVal   = flag.Uint64("seed", 0, "Random seed (0 = time-based)")
	email     = flag.String("email", "admin@example.com", "Operator email for login")
	password  = flag.String("password", "strongpassword", "Operator password for login")
)

type aircraft struct {
	transponder string // empty for silent tracks
	lat, lon    float64
	altitude    float64
	speed       float64
	track       float64
}

type telemetry struct {
	TransponderID string  `json:"transponder_id,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	Groundspeed   float64 `json:"groundspeed"`
	Track         float64 `json:"track"`
}

func spawn(rng *rand.Rand, i int) aircraft {
	a := aircraft{
		lat:      *centerLat + (rng.Float64()-0.5)*1.5,
		lon:      *centerLon + (rng.Float64()-0.5)*1.5,
		altitude: 2000 + rng.Float64()*38000,
		speed:    80 + rng.Float64()*600,
		track:    rng.Float64() * 360,
	}
	// Every third aircraft runs silent; every fourth is pointed at the
	// center to cross restricted airspace.
	if i%3 != 0 {
		a.transponder = fmt.Sprintf("VT-%03d", 100+i)
	}
	if i%4 == 0 {
		a.track = math.Mod(math.Atan2(*centerLon-a.lon, *centerLat-a.lat)*180/math.Pi+360, 360)
		a.altitude = 1000 + rng.Float64()*4000
	}
	return a
}

// advance moves the aircraft along its track for the elapsed interval using
// the same flat-earth model the server predicts with.
func (a *aircraft) advance(d time.Duration) {
	degPerSec := a.speed / 216000
	t := d.Seconds()
	rad := a.track * math.Pi / 180
	a.lat += math.Cos(rad) * degPerSec * t
	a.lon += math.Sin(rad) * degPerSec * t / math.Cos(a.lat*math.Pi/180)
}

// login exchanges the operator credentials for a session token. The ingest
// route sits behind the same bearer auth as the rest of the API.
func login(client *http.Client) (string, error) {
	body, err := json.Marshal(map[string]string{"email": *email, "password": *password})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(*server+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %s", resp.Status)
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", err
	}
	return session.Token, nil
}

func send(client *http.Client, token string, a aircraft) error {
	body, err := json.Marshal(telemetry{
		TransponderID: a.transponder,
		Latitude:      a.lat,
		Longitude:     a.lon,
		Altitude:      a.altitude,
		Groundspeed:   a.speed,
		Track:         a.track,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", *server+"/api/flights", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func main() {
	flag.Parse()

	seed := *seedVal
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	fleet := make([]aircraft, *count)
	for i := range fleet {
		fleet[i] = spawn(rng, i)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	token, err := login(client)
	if err != nil {
		log.Fatalf("failed to log in as %s: %v", *email, err)
	}
	log.Printf("simulating %d aircraft against %s (seed %d)", *count, *server, seed)

	for round := 0; *rounds == 0 || round < *rounds; round++ {
		for i := range fleet {
			if err := send(client, token, fleet[i]); err != nil {
				log.Printf("aircraft %d: %v", i, err)
			}
			fleet[i].advance(*interval)
		}
		time.Sleep(*interval)
	}
}
