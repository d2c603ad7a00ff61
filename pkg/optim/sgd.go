package optim

// SGD is stochastic gradient descent with optional classical momentum.
// Velocity is kept per parameter slice, keyed by its first element's
// address, so one optimizer can step several slices.
type SGD struct {
	LearningRate float64
	Momentum     float64

	velocity map[*float64][]float64
}

func NewSGD(lr, momentum float64) *SGD {
	return &SGD{LearningRate: lr, Momentum: momentum, velocity: map[*float64][]float64{}}
}

// Step updates weights in place.
func (o *SGD) Step(weights, grads []float64) {
	if len(weights) == 0 {
		return
	}
	if o.Momentum == 0 {
		for i := range weights {
			weights[i] -= o.LearningRate * grads[i]
		}
		return
	}
	if o.velocity == nil {
		o.velocity = map[*float64][]float64{}
	}
	v, ok := o.velocity[&weights[0]]
	if !ok {
		v = make([]float64, len(weights))
		o.velocity[&weights[0]] = v
	}
	for i := range weights {
		v[i] = o.Momentum*v[i] - o.LearningRate*grads[i]
		weights[i] += v[i]
	}
}
