package traffic

import (
	"fmt"
	"math/rand"
)

var (
	countries  = []string{"DE", "BR", "FR", "IN", "GB", "US", "JP"}
	categories = []string{"coffee", "equipment", "supplies"}
	statuses   = []string{"pending", "shipped", "delivered", "cancelled"}
)

// questionTemplates are phrased against the seeded shop tables.
var questionTemplates = []func(r *rand.Rand) string{
	func(r *rand.Rand) string {
		return fmt.Sprintf("How many customers are from %s?", pickOne(r, countries))
	},
	func(r *rand.Rand) string {
		return fmt.Sprintf("List the %d most expensive products.", 2+r.Intn(3))
	},
	func(r *rand.Rand) string {
		return fmt.Sprintf("What is the total revenue from %s products?", pickOne(r, categories))
	},
	func(r *rand.Rand) string {
		return fmt.Sprintf("How many orders have the status %s?", pickOne(r, statuses))
	},
	func(r *rand.Rand) string {
		return fmt.Sprintf("Which customers placed at least %d orders?", 2+r.Intn(2))
	},
	func(*rand.Rand) string {
		return "Show the average order value per customer country."
	},
	func(*rand.Rand) string {
		return "Which product was ordered in the largest total quantity?"
	},
}

// Generator yields demo questions deterministically for a seed.
type Generator struct {
	rnd      *rand.Rand
	sequence int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) NextQuestion() string {
	g.sequence++
	return questionTemplates[g.rnd.Intn(len(questionTemplates))](g.rnd)
}

// Asked reports how many questions have been generated.
func (g *Generator) Asked() int {
	return g.sequence
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
