package computer

import (
	"github.com/jaypipes/ghw"

	"codeberg.org/mutker/hwcontrol/internal/hardware/dell"
	"codeberg.org/mutker/hwcontrol/internal/hardware/motherboard"
)

// DMI is the machine identity read from the SMBIOS tables.
type DMI struct {
	SystemVendor  string
	SystemProduct string
	BoardVendor   string
	BoardProduct  string
	BoardVersion  string
}

func (d DMI) Board() motherboard.Board {
	return motherboard.Board{Vendor: d.BoardVendor, Product: d.BoardProduct, Version: d.BoardVersion}
}

func (d DMI) System() dell.System {
	return dell.System{Vendor: d.SystemVendor, Board: d.BoardProduct}
}

func readDMI() (DMI, error) {
	product, err := ghw.Product(ghw.WithDisableWarnings())
	if err != nil {
		return DMI{}, err
	}
	board, err := ghw.Baseboard(ghw.WithDisableWarnings())
	if err != nil {
		return DMI{}, err
	}

	return DMI{
		SystemVendor:  product.Vendor,
		SystemProduct: product.Name,
		BoardVendor:   board.Vendor,
		BoardProduct:  board.Product,
		BoardVersion:  board.Version,
	}, nil
}
