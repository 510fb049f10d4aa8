// SPDX-FileCopyrightText: 2026 The LLHLS-ABRs authors
// SPDX-License-Identifier: MIT

package lolp

import (
	"math"
	"math/rand"

	"github.com/pion/logging"

	"github.com/llhls-ABRdemo/LLHLS-ABRs/internal/types"
	"github.com/llhls-ABRdemo/LLHLS-ABRs/pkg/rule"
)

// WeightSelectionMode picks how the SOM distance weights are chosen on each
// decision.
type WeightSelectionMode int

// Weight selection modes.
const (
	// WeightsDynamic searches the enumerated weight vectors for the one
	// maximizing single-use QoE.
	WeightsDynamic WeightSelectionMode = iota
	// WeightsManual fixes every weight at 0.4.
	WeightsManual
	// WeightsRandom draws Xavier-initialized weights each call.
	WeightsRandom
)

const (
	latencyNormalizationFactor = 100
	// throughputDelta keeps a margin below the measured throughput;
	// 10 kbit/s over the video encoding is the recommended headroom.
	throughputDelta = 10000

	neighbourhoodSigma = 0.1
	learningRate       = 0.01

	manualWeight = 0.4
)

type neuronState struct {
	throughput    float64
	latency       float64
	rebuffer      float64
	bitrateSwitch float64
}

type neuron struct {
	qualityIndex int
	bitrate      float64 // bits/s
	state        neuronState
}

// somController is the self-organizing map over the rendition ladder: one
// neuron per rung, trained online as segments play out.
type somController struct {
	log logging.LeveledLogger
	rnd *rand.Rand

	mode WeightSelectionMode

	neurons                    []*neuron
	bitrateNormalizationFactor float64
	minBitrate                 float64

	weights       []float64
	sortedCenters [][]float64
}

func newSomController(mode WeightSelectionMode, rnd *rand.Rand, log logging.LeveledLogger) *somController {
	return &somController{
		log:  log,
		rnd:  rnd,
		mode: mode,
	}
}

// ensureNeurons lazily builds the neuron set from the ladder on first use.
// Initial throughput states are the normalized bitrates, everything else
// starts at zero.
func (c *somController) ensureNeurons(levels []*types.Level) []*neuron {
	if c.neurons != nil {
		return c.neurons
	}

	c.bitrateNormalizationFactor = rule.Magnitude(levels)
	c.minBitrate = math.Inf(1)

	for i, l := range levels {
		bitrate := float64(l.Bitrate)
		c.neurons = append(c.neurons, &neuron{
			qualityIndex: i,
			bitrate:      bitrate,
			state: neuronState{
				throughput: bitrate / c.bitrateNormalizationFactor,
			},
		})
		if bitrate < c.minBitrate {
			c.minBitrate = bitrate
		}
	}

	c.sortedCenters = c.kmeansPlusPlusCenters(c.neurons)

	return c.neurons
}

func (c *somController) maxThroughput() float64 {
	var maxTp float64
	for _, n := range c.neurons {
		if n.state.throughput > maxTp {
			maxTp = n.state.throughput
		}
	}

	return maxTp
}

// distance is the weighted Euclidean distance between two state vectors.
// The sum is folded left to right; a negative sum (possible with negative
// weights during experiments) keeps its sign through the square root.
func distance(a, b, w []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += w[i] * d * d
	}
	sign := 1.0
	if sum < 0 {
		sign = -1
	}

	return sign * math.Sqrt(math.Abs(sum))
}

func (n *neuron) stateVector() []float64 {
	return []float64{n.state.throughput, n.state.latency, n.state.rebuffer, n.state.bitrateSwitch}
}

func neuronDistance(a, b *neuron) float64 {
	return distance(a.stateVector(), b.stateVector(), []float64{1, 1, 1, 1})
}

// updateNeurons trains the winner's neighbourhood towards x with a Gaussian
// kernel over neuron distance.
func (c *somController) updateNeurons(winner *neuron, x []float64) {
	for _, n := range c.neurons {
		dist := neuronDistance(n, winner)
		neighbourhood := math.Exp(-dist * dist / (2 * neighbourhoodSigma * neighbourhoodSigma))
		n.state.throughput += (x[0] - n.state.throughput) * learningRate * neighbourhood
		n.state.latency += (x[1] - n.state.latency) * learningRate * neighbourhood
		n.state.rebuffer += (x[2] - n.state.rebuffer) * learningRate * neighbourhood
		n.state.bitrateSwitch += (x[3] - n.state.bitrateSwitch) * learningRate * neighbourhood
	}
}

// downShiftedQualityIndex returns the highest-bitrate neuron strictly below
// the current one that still fits the throughput, or the lowest rung when
// none does.
func (c *somController) downShiftedQualityIndex(currentBitrate, throughput float64) int {
	best := -1
	bestBitrate := math.Inf(-1)
	lowest := 0
	lowestBitrate := math.Inf(1)
	for _, n := range c.neurons {
		if n.bitrate < lowestBitrate {
			lowestBitrate = n.bitrate
			lowest = n.qualityIndex
		}
		if n.bitrate < currentBitrate && n.bitrate < throughput && n.bitrate > bestBitrate {
			bestBitrate = n.bitrate
			best = n.qualityIndex
		}
	}
	if best < 0 {
		return lowest
	}

	return best
}

// nextQuality runs one SOM decision: pick weights, find the best matching
// unit for the target state, train the map, return the winner's rung.
func (c *somController) nextQuality(
	levels []*types.Level,
	throughput, latencyS, bufferS, playbackRate float64,
	currentQuality int,
	selector *WeightSelector,
) int {
	neurons := c.ensureNeurons(levels)

	throughputNormalized := throughput / c.bitrateNormalizationFactor
	// saturate values above 1 with the highest throughput the map has seen
	if throughputNormalized > 1 {
		throughputNormalized = c.maxThroughput()
	}
	latency := latencyS / latencyNormalizationFactor

	const (
		targetLatency       = 0
		targetRebufferLevel = 0
		targetBitrateSwitch = 0
	)

	currentQuality = rule.ClampLevel(currentQuality, len(neurons))
	currentNeuron := neurons[currentQuality]

	downloadTime := currentNeuron.bitrate * selector.SegmentDuration() / throughput
	rebuffer := math.Max(0, downloadTime-bufferS)

	if bufferS-downloadTime < selector.MinBuffer() {
		c.log.Debugf("buffer %.2fs cannot absorb download of %.2fs, shifting down", bufferS, downloadTime)

		return c.downShiftedQualityIndex(currentNeuron.bitrate, throughput)
	}

	if c.weights == nil {
		c.weights = c.sortedCenters[len(c.sortedCenters)-1]
	}

	switch c.mode {
	case WeightsManual:
		c.weights = []float64{manualWeight, manualWeight, manualWeight, manualWeight}
	case WeightsRandom:
		c.weights = c.xavierWeights()
	case WeightsDynamic:
		if w := selector.FindWeightVector(neurons, latencyS, bufferS, throughput, playbackRate); w != nil {
			c.weights = w
		}
	}

	target := []float64{throughputNormalized, targetLatency, targetRebufferLevel, targetBitrateSwitch}

	minDistance := math.Inf(1)
	winner := currentNeuron
	for _, n := range neurons {
		distanceWeights := append([]float64(nil), c.weights...)
		nextBuffer := selector.NextBufferWithBitrate(n.bitrate, bufferS, throughput)
		bufferLow := nextBuffer < selector.MinBuffer()
		if (n.bitrate > throughput-throughputDelta || bufferLow) && n.bitrate != c.minBitrate {
			// push the neuron out of reach rather than excluding it,
			// so training still sees it
			distanceWeights[0] = 100
		}
		d := distance(n.stateVector(), target, distanceWeights)
		if d < minDistance {
			minDistance = d
			winner = n
		}
	}

	bitrateSwitch := math.Abs(currentNeuron.bitrate-winner.bitrate) / c.bitrateNormalizationFactor
	c.updateNeurons(currentNeuron, []float64{throughputNormalized, latency, rebuffer, bitrateSwitch})
	c.updateNeurons(winner, []float64{throughputNormalized, targetLatency, targetRebufferLevel, bitrateSwitch})

	return winner.qualityIndex
}

// xavierWeights draws each weight uniformly from [0, sqrt(2/N)) for the
// four state axes.
func (c *somController) xavierWeights() []float64 {
	limit := math.Sqrt(2.0 / 4.0)
	w := make([]float64, 4)
	for i := range w {
		w[i] = c.rnd.Float64() * limit
	}

	return w
}

// kmeansPlusPlusCenters seeds one center per neuron from synthetic state
// points, then orders them starting from the least similar center and
// greedily appending its nearest remaining neighbour.
func (c *somController) kmeansPlusPlusCenters(neurons []*neuron) [][]float64 {
	unit := []float64{1, 1, 1, 1}

	data := c.randomData(len(neurons) * len(neurons))
	centers := [][]float64{data[0]}
	for k := 1; k < len(neurons); k++ {
		var nextPoint []float64
		maxDistance := math.Inf(-1)
		for _, point := range data {
			minDistance := math.Inf(1)
			for _, center := range centers {
				if d := distance(point, center, unit); d < minDistance {
					minDistance = d
				}
			}
			if minDistance > maxDistance {
				maxDistance = minDistance
				nextPoint = point
			}
		}
		centers = append(centers, nextPoint)
	}

	// the least similar center leads the ordering
	leastSimilar := 0
	maxDistance := math.Inf(-1)
	for i := range centers {
		var sum float64
		for j := range centers {
			if i == j {
				continue
			}
			sum += distance(centers[i], centers[j], unit)
		}
		if sum > maxDistance {
			maxDistance = sum
			leastSimilar = i
		}
	}

	sorted := [][]float64{centers[leastSimilar]}
	centers = append(centers[:leastSimilar], centers[leastSimilar+1:]...)
	for len(centers) > 0 {
		minIndex := 0
		minDistance := math.Inf(1)
		for i, center := range centers {
			if d := distance(sorted[0], center, unit); d < minDistance {
				minDistance = d
				minIndex = i
			}
		}
		sorted = append(sorted, centers[minIndex])
		centers = append(centers[:minIndex], centers[minIndex+1:]...)
	}

	return sorted
}

// randomData draws synthetic state points from
// [0, maxThroughput] x [0,1]^3.
func (c *somController) randomData(size int) [][]float64 {
	maxTp := c.maxThroughput()
	data := make([][]float64, size)
	for i := range data {
		data[i] = []float64{
			c.rnd.Float64() * maxTp,
			c.rnd.Float64(),
			c.rnd.Float64(),
			c.rnd.Float64(),
		}
	}

	return data
}
