package ports

import "github.com/rwax/swapd/internal/core/domain"

type RepoManager interface {
	Swaps() domain.SwapRepository
	Close()
}
