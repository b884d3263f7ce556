// Package finder runs feature detection on an LC-MS run, from spectrum
// deconvolution to the final scored feature list.
package finder

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/524D/mzfeature/internal/deconv"
	"github.com/524D/mzfeature/internal/feature"
	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/scoring"
	"github.com/montanaflynn/stats"
)

// Params are the user settable parameters of a feature finding run. They
// are stored with the results, hence the JSON tags.
type Params struct {
	MinCharge     int            `json:"minCharge"`
	MaxCharge     int            `json:"maxCharge"`
	MinMass       float64        `json:"minMass"`
	MaxMass       float64        `json:"maxMass"`
	Tolerance     lcms.Tolerance `json:"tolerancePPM"`
	MinScore      float64        `json:"minScore"`
	ElutionWindow float64        `json:"elutionWindow"` // NET
	Threads       int            `json:"-"`
}

// DefaultParams returns the default parameters
func DefaultParams() Params {
	d := deconv.DefaultParams()
	return Params{
		MinCharge:     d.MinCharge,
		MaxCharge:     d.MaxCharge,
		MinMass:       d.MinMass,
		MaxMass:       d.MaxMass,
		Tolerance:     d.Tolerance,
		MinScore:      feature.DefaultParams().MinScore,
		ElutionWindow: 0.4,
		Threads:       1,
	}
}

// DeconvParams returns the deconvolution parameters of par
func (par Params) DeconvParams() deconv.Params {
	d := deconv.DefaultParams()
	d.MinCharge, d.MaxCharge = par.MinCharge, par.MaxCharge
	d.MinMass, d.MaxMass = par.MinMass, par.MaxMass
	d.Tolerance = par.Tolerance
	return d
}

// BuildParams returns the feature build parameters of par
func (par Params) BuildParams() feature.BuildParams {
	b := feature.DefaultBuildParams()
	b.Tolerance = par.Tolerance
	return b
}

// ContainerParams returns the feature container parameters of par
func (par Params) ContainerParams() feature.Params {
	c := feature.DefaultParams()
	c.MinScore = par.MinScore
	c.Tolerance = par.Tolerance
	return c
}

// Result holds the output of a run, and the intermediate candidates for
// inspection
type Result struct {
	Candidates []deconv.Ms1Feature // ordered by scan number and mass
	Clusters   int
	Built      int // features that passed the container
	Features   []*feature.Feature
}

// Finder detects features. Progress, when set, receives the duration of
// each processing step.
type Finder struct {
	par      Params
	model    *scoring.Model
	Progress io.Writer
}

// New creates a finder that scores features with model
func New(par Params, model *scoring.Model) *Finder {
	if par.Threads < 1 {
		par.Threads = 1
	}
	return &Finder{par: par, model: model}
}

func (fd *Finder) step(t time.Time, name string) time.Time {
	if fd.Progress != nil {
		if !t.IsZero() {
			fmt.Fprintf(fd.Progress, "%s\n", time.Since(t))
		}
		if name != "" {
			fmt.Fprintf(fd.Progress, "%s: ", name)
		}
	}
	return time.Now()
}

// Find detects the features of run. Only the deconvolution of spectra can be
// cancelled through ctx.
func (fd *Finder) Find(ctx context.Context, run lcms.Run) (*Result, error) {
	dp := fd.par.DeconvParams()
	envelopes := isotope.NewEnvelopeCache(dp.MaxIsotopes, dp.RelIntensityThreshold)
	spectra := deconv.NewSpectrumCache(run, dp.BinBits)
	dec := deconv.New(dp, envelopes)

	t := fd.step(time.Time{}, "Deconvoluting spectra")
	cands, err := dec.Run(ctx, spectra, fd.par.Threads)
	if err != nil {
		return nil, err
	}

	t = fd.step(t, "Clustering candidates")
	clusters := feature.Cluster(cands, run, fd.par.Tolerance, fd.par.ElutionWindow)

	t = fd.step(t, "Building features")
	builder := feature.NewClusterBuilder(fd.par.BuildParams(), envelopes, spectra, fd.model)
	built := fd.build(builder, clusters, run)

	t = fd.step(t, "Resolving overlaps")
	container := feature.NewContainer(fd.par.ContainerParams())
	for _, f := range built {
		container.Add(f)
	}
	res := &Result{
		Candidates: cands,
		Clusters:   len(clusters),
		Built:      container.Len(),
		Features:   container.GetFilteredFeatures(builder),
	}
	fd.step(t, "")
	if fd.Progress != nil {
		logSummary(res)
	}
	return res, nil
}

// build builds the features of all clusters on a pool of workers. The
// result is in cluster order; clusters without a feature give nil.
func (fd *Finder) build(b feature.Builder, clusters [][]deconv.Ms1Feature, run lcms.Run) []*feature.Feature {
	built := make([]*feature.Feature, len(clusters))
	jobs := make(chan int, fd.par.Threads*2)
	var wg sync.WaitGroup
	wg.Add(fd.par.Threads)
	for w := 0; w < fd.par.Threads; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				bd := feature.ClusterBounds(clusters[i], run)
				built[i] = b.Build(bd.Mass, bd.MinScanNum, bd.MaxScanNum, bd.MinCharge, bd.MaxCharge)
			}
		}()
	}
	for i := range clusters {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return built
}

func logSummary(res *Result) {
	log.Printf("%d candidates in %d clusters, %d features built, %d features retained",
		len(res.Candidates), res.Clusters, res.Built, len(res.Features))
	if len(res.Features) == 0 {
		return
	}
	scores := make(stats.Float64Data, len(res.Features))
	for i, f := range res.Features {
		scores[i] = f.Score
	}
	median, err := stats.Median(scores)
	if err != nil {
		log.Printf("stats.Median: error return %v", err)
		return
	}
	p90, err := stats.PercentileNearestRank(scores, 90)
	if err != nil {
		log.Printf("stats.PercentileNearestRank: error return %v", err)
		return
	}
	log.Printf("Feature score median %.2f, 90th percentile %.2f", median, p90)
}
