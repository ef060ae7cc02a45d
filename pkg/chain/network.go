package chain

import "math/big"

var networkNames = map[uint64]string{
	1:  "Main",
	3:  "Ropsten",
	4:  "Rinkeby",
	42: "Kovan",
}

// NetworkName maps a network id to the name shown to the user. Unknown ids
// are reported as "Private".
func NetworkName(id *big.Int) string {
	if id == nil || !id.IsUint64() {
		return "Private"
	}
	if name, ok := networkNames[id.Uint64()]; ok {
		return name
	}
	return "Private"
}
