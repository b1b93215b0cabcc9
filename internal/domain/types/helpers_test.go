package types_test

import (
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
)

func quantityOf(s string) quantity.Quantity { return quantity.Parse(s) }

func poolOf(total string) model.PoolState {
	q := quantity.Parse(total)
	return model.PoolState{TotalStaked: q, TotalWeight: q}
}
