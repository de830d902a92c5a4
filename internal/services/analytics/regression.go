package analytics

import (
	"fmt"
	"math"
	"math/rand"

	"BankStats/internal/domain/models"
)

const (
	// MinTrainRows is the smallest table a 75/25 split can score on.
	MinTrainRows = 4
	// DefaultTestRatio is the held-out share of rows.
	DefaultTestRatio = 0.25
)

// TrainOptions controls the train/test split.
type TrainOptions struct {
	TestRatio float64
	Seed      int64
}

// FittedModel is an ordinary least-squares fit of
// daily_return ≈ w1·moving_average + w2·close + b.
// It is immutable once returned by Train.
type FittedModel struct {
	wMA       float64
	wClose    float64
	intercept float64
	trainRows int
	testRows  int
}

// Coefficients returns (moving-average weight, close weight, intercept).
func (m *FittedModel) Coefficients() (float64, float64, float64) {
	return m.wMA, m.wClose, m.intercept
}

// TrainRows is the number of rows the model was fitted on.
func (m *FittedModel) TrainRows() int { return m.trainRows }

// TestRows is the number of held-out rows used for scoring.
func (m *FittedModel) TestRows() int { return m.testRows }

// Predict applies the fitted affine map to one feature vector.
// Non-finite inputs yield NaN.
func (m *FittedModel) Predict(movingAverage, close float64) float64 {
	if !finite(movingAverage) || !finite(close) {
		return math.NaN()
	}
	return m.wMA*movingAverage + m.wClose*close + m.intercept
}

// PredictRow predicts the daily return for a feature row.
func (m *FittedModel) PredictRow(r models.FeatureRow) float64 {
	return m.Predict(r.MovingAverage, r.Close)
}

// Train fits the model on a random 1-TestRatio share of the table and returns
// the R² on the remaining rows. The split is a shuffle, not a chronological cut,
// so the score is not a time-series backtest.
func Train(table models.FeatureTable, opts TrainOptions) (*FittedModel, float64, error) {
	n := table.Len()
	if n < MinTrainRows {
		return nil, math.NaN(), fmt.Errorf("train %s: %d rows, need %d: %w",
			table.Ticker, n, MinTrainRows, models.ErrInsufficientHistory)
	}
	ratio := opts.TestRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultTestRatio
	}

	train, test := splitRows(table.Rows, ratio, opts.Seed)
	m := fitOLS(train)
	m.trainRows = len(train)
	m.testRows = len(test)
	return m, score(m, test), nil
}

// splitRows shuffles a copy of rows and cuts it into train and test parts.
// nTest = ceil(n·ratio), clamped so both parts are non-empty.
func splitRows(rows []models.FeatureRow, ratio float64, seed int64) ([]models.FeatureRow, []models.FeatureRow) {
	n := len(rows)
	nTest := int(math.Ceil(float64(n) * ratio))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(n)

	test := make([]models.FeatureRow, 0, nTest)
	train := make([]models.FeatureRow, 0, n-nTest)
	for k, i := range idx {
		if k < nTest {
			test = append(test, rows[i])
		} else {
			train = append(train, rows[i])
		}
	}
	return train, test
}

// fitOLS solves the least-squares problem on centered data. The 2x2 normal
// matrix is inverted through its eigen-decomposition, dropping directions with
// negligible variance, which gives the minimum-norm solution for collinear features.
func fitOLS(rows []models.FeatureRow) *FittedModel {
	n := float64(len(rows))
	var mx1, mx2, my float64
	for _, r := range rows {
		mx1 += r.MovingAverage
		mx2 += r.Close
		my += r.DailyReturn
	}
	mx1 /= n
	mx2 /= n
	my /= n

	var s11, s12, s22, s1y, s2y float64
	for _, r := range rows {
		d1 := r.MovingAverage - mx1
		d2 := r.Close - mx2
		dy := r.DailyReturn - my
		s11 += d1 * d1
		s12 += d1 * d2
		s22 += d2 * d2
		s1y += d1 * dy
		s2y += d2 * dy
	}

	w1, w2 := solveSym2(s11, s12, s22, s1y, s2y)
	return &FittedModel{
		wMA:       w1,
		wClose:    w2,
		intercept: my - w1*mx1 - w2*mx2,
	}
}

// solveSym2 returns pinv([[a b] [b c]]) · [u v].
func solveSym2(a, b, c, u, v float64) (float64, float64) {
	half := (a + c) / 2
	r := math.Hypot((a-c)/2, b)
	l1 := half + r
	l2 := half - r

	// unit eigenvector of l1; the one for l2 is its rotation
	var e1x, e1y float64
	switch {
	case b != 0:
		e1x, e1y = l1-c, b
		norm := math.Hypot(e1x, e1y)
		e1x /= norm
		e1y /= norm
	case a >= c:
		e1x, e1y = 1, 0
	default:
		e1x, e1y = 0, 1
	}
	e2x, e2y := -e1y, e1x

	tol := 1e-12 * math.Max(math.Abs(l1), 1e-300)
	var w1, w2 float64
	if l1 > tol {
		p := (e1x*u + e1y*v) / l1
		w1 += p * e1x
		w2 += p * e1y
	}
	if l2 > tol {
		p := (e2x*u + e2y*v) / l2
		w1 += p * e2x
		w2 += p * e2y
	}
	return w1, w2
}

// score computes R² = 1 - SS_res/SS_tot on rows; NaN when SS_tot is zero.
func score(m *FittedModel, rows []models.FeatureRow) float64 {
	if len(rows) == 0 {
		return math.NaN()
	}
	var my float64
	for _, r := range rows {
		my += r.DailyReturn
	}
	my /= float64(len(rows))

	var ssRes, ssTot float64
	for _, r := range rows {
		e := r.DailyReturn - m.PredictRow(r)
		d := r.DailyReturn - my
		ssRes += e * e
		ssTot += d * d
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
