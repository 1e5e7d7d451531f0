package scoring

const (
	// d0 = D0Scale*(L-D0Offset)^(1/3) - D0Shift for L > D0Offset.
	D0Scale  = 1.24
	D0Offset = 15.0
	D0Shift  = 1.8
	// D0Floor is used for chains of at most D0Offset residues.
	D0Floor = 0.5
)
