package sweep_test

import (
	"fmt"

	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

func ExampleSetup_Targets() {
	targets, err := sweep.Setup{Start: 100, End: 12000, Points: 5}.Targets()
	if err != nil {
		panic(err)
	}

	for _, f := range targets {
		fmt.Printf("%.1f kHz\n", f)
	}

	// Output:
	// 100.0 kHz
	// 331.0 kHz
	// 1095.4 kHz
	// 3625.7 kHz
	// 12000.0 kHz
}
