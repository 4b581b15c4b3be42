package liquidstake

import (
	"strings"

	"liquidstake/crypto"
)

// PoolAccounts derives the stash and controller from their independent
// seeds.
func PoolAccounts(params Params) (stash, controller [20]byte, err error) {
	stashSeed := strings.TrimSpace(params.StashSeed)
	controllerSeed := strings.TrimSpace(params.ControllerSeed)
	if stashSeed == "" || controllerSeed == "" {
		return stash, controller, errEmptySeed
	}
	if stashSeed == controllerSeed {
		return stash, controller, ErrAccountCollision
	}
	stash = crypto.DeriveModuleAccount(stashSeed)
	controller = crypto.DeriveModuleAccount(controllerSeed)
	if stash == controller {
		return [20]byte{}, [20]byte{}, ErrAccountCollision
	}
	return stash, controller, nil
}
