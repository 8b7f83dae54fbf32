package imagery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"transientbot/internal/config"
	"transientbot/internal/transients"
)

const votableTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.3" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
  <RESOURCE type="results">
    <INFO name="QUERY_STATUS" value="OK"/>
    <TABLE>
      <FIELD name="obs_publisher_did" datatype="char" arraysize="*"/>
      <FIELD name="filename" datatype="char" arraysize="*"/>
      <FIELD name="obs_collection" datatype="char" arraysize="*"/>
      <FIELD name="obs_release_date" datatype="char" arraysize="*"/>
      <DATA><TABLEDATA>%s</TABLEDATA></DATA>
    </TABLE>
  </RESOURCE>
</VOTABLE>`

func voRowXML(did, filename, collection, release string) string {
	return fmt.Sprintf("<TR><TD>%s</TD><TD>%s</TD><TD>%s</TD><TD>%s</TD></TR>", did, filename, collection, release)
}

type casdaServer struct {
	server    *httptest.Server
	loginHits atomic.Int32
	tapQuery  atomic.Value
	cutoutReq atomic.Value
	rows      string
	tapCode   atomic.Int32
}

func newCASDAServer(t *testing.T, rows string) *casdaServer {
	t.Helper()
	cs := &casdaServer{rows: rows}
	cs.tapCode.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		cs.loginHits.Add(1)
		if user, pass, ok := r.BasicAuth(); !ok || user != "astro" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/tap/sync", func(w http.ResponseWriter, r *http.Request) {
		cs.tapQuery.Store(r.URL.Query().Get("QUERY"))
		if code := int(cs.tapCode.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/x-votable+xml")
		fmt.Fprintf(w, votableTemplate, cs.rows)
	})
	mux.HandleFunc("/soda/sync", func(w http.ResponseWriter, r *http.Request) {
		cs.cutoutReq.Store(r.URL.Query())
		_, _ = w.Write(buildFITS(t, -32, []int{2, 2, 1, 1}, []float64{1, 2, 3, 4}, fitsCard{"CDELT2", "0.00055555556"}))
	})
	cs.server = httptest.NewServer(mux)
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *casdaServer) fetcher(user, pass string) *CASDA {
	cfg := config.Default().CASDA
	cfg.Username = user
	cfg.Password = pass
	cfg.LoginURL = cs.server.URL + "/login"
	cfg.TAPURL = cs.server.URL + "/tap/sync"
	cfg.CutoutURL = cs.server.URL + "/soda/sync"
	c := NewCASDA(cfg, cs.server.Client())
	c.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }
	return c
}

var racsTarget = Target{ID: "J1_obs1", Coordinates: transients.Coordinates{RA: 188.5, Dec: -56.9}, RadiusArcmin: 2.5}

func TestCASDAFetchesFirstMatchingRACSImage(t *testing.T) {
	collection := config.Default().CASDA.Collection
	rows := voRowXML("ivo://casda/wrong", "VAST_1234.fits", collection, "") +
		voRowXML("ivo://casda/embargoed", "RACS-DR1_0001A.fits", collection, "2027-01-01T00:00:00Z") +
		voRowXML("ivo://casda/good", "RACS-DR1_1234A.fits", collection, "2020-01-01T00:00:00Z") +
		voRowXML("ivo://casda/later", "RACS-DR1_5678A.fits", collection, "")
	cs := newCASDAServer(t, rows)
	fetcher := cs.fetcher("astro", "secret")

	cutout, err := fetcher.Fetch(context.Background(), racsTarget)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if cutout.Survey != "RACS" || cutout.Width != 2 || cutout.Height != 2 {
		t.Fatalf("unexpected cutout %+v", cutout)
	}
	if !almostEqual(cutout.PixelScaleArcsec, 2) {
		t.Fatalf("unexpected pixel scale %v", cutout.PixelScaleArcsec)
	}

	query, _ := cs.tapQuery.Load().(string)
	for _, want := range []string{"ivoa.obscore", "CIRCLE('ICRS', 188.500000, -56.900000, 0.041667)", "obs_collection = 'The Rapid ASKAP Continuum Survey'"} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected %q in ADQL %q", want, query)
		}
	}
	params, _ := cs.cutoutReq.Load().(url.Values)
	if params["ID"][0] != "ivo://casda/good" || params["CIRCLE"][0] != "188.500000 -56.900000 0.041667" {
		t.Fatalf("unexpected cutout parameters %v", params)
	}

	if _, err := fetcher.Fetch(context.Background(), racsTarget); err != nil {
		t.Fatalf("second Fetch returned error: %v", err)
	}
	if hits := cs.loginHits.Load(); hits != 1 {
		t.Fatalf("expected a single login probe, got %d", hits)
	}
}

func TestCASDANoMatchingRowsIsNoImagery(t *testing.T) {
	cs := newCASDAServer(t, voRowXML("ivo://x", "RACS-DR1_1234B.fits", config.Default().CASDA.Collection, ""))
	_, err := cs.fetcher("", "").Fetch(context.Background(), racsTarget)
	if !errors.Is(err, ErrNoImagery) {
		t.Fatalf("expected ErrNoImagery, got %v", err)
	}
	if cs.loginHits.Load() != 0 {
		t.Fatal("anonymous access should skip the login probe")
	}
}

func TestCASDALoginFailureIsNotNoImagery(t *testing.T) {
	cs := newCASDAServer(t, "")
	_, err := cs.fetcher("astro", "wrong").Fetch(context.Background(), racsTarget)
	if err == nil || errors.Is(err, ErrNoImagery) || !strings.Contains(err.Error(), "authentication failed") {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestCASDAServerErrorIsTransient(t *testing.T) {
	cs := newCASDAServer(t, "")
	cs.tapCode.Store(http.StatusBadGateway)
	_, err := cs.fetcher("", "").Fetch(context.Background(), racsTarget)
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if errors.Is(err, ErrNoImagery) {
		t.Fatal("server errors must not be reported as missing imagery")
	}
}

func TestTapRowsReportsQueryError(t *testing.T) {
	doc := `<VOTABLE><RESOURCE type="results"><INFO name="QUERY_STATUS" value="ERROR">bad ADQL</INFO></RESOURCE></VOTABLE>`
	if _, err := tapRows(strings.NewReader(doc)); err == nil || !strings.Contains(err.Error(), "bad ADQL") {
		t.Fatalf("expected query error, got %v", err)
	}
}
