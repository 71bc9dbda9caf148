package arena

// Prisoner's-dilemma payoffs for an encounter; temptation > reward >
// punishment > sucker keeps defection individually tempting while mutual
// cooperation pays more in aggregate.
const (
	payoffTemptation = 5.0
	payoffReward     = 3.0
	payoffPunishment = 1.0
	payoffSucker     = 0.0

	baseDamage = 18.0
)

// resolveBattle plays one encounter. Each side cooperates with probability
// equal to its cooperation gene; defection turns the encounter physical.
func (a *Arena) resolveBattle(x, y *agent) {
	xCoop := a.rng.Float64() < x.cooperation()
	yCoop := a.rng.Float64() < y.cooperation()

	switch {
	case xCoop && yCoop:
		x.score += payoffReward
		y.score += payoffReward
	case xCoop && !yCoop:
		y.score += payoffTemptation
		y.wins++
		x.score += payoffSucker
		a.wound(x, y)
	case !xCoop && yCoop:
		x.score += payoffTemptation
		x.wins++
		y.score += payoffSucker
		a.wound(y, x)
	default:
		winner, loser := x, y
		if a.power(y) > a.power(x) {
			winner, loser = y, x
		}
		winner.score += payoffPunishment + 0.5
		winner.wins++
		loser.score += payoffPunishment * 0.5
		a.wound(loser, winner)
	}

	x.battles++
	y.battles++
	a.totalBattles++
}

// power is the combat roll: mostly strength, some agility, a little noise.
func (a *Arena) power(ag *agent) float64 {
	return ag.strength()*0.65 + ag.agility()*0.35 + a.rng.Float64()*0.1
}

// wound applies battle damage to the loser, softened by resilience.
func (a *Arena) wound(loser, winner *agent) {
	damage := baseDamage * (1.2 - loser.resilience())
	if damage < 0 {
		damage = 0
	}
	loser.health -= damage * (0.6 + winner.strength()*0.8)
	if loser.health < 0 {
		loser.health = 0
	}
}
