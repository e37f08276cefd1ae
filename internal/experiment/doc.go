// Package experiment drives a quality ablation: it partitions the corpus
// once per seed, materializes a degraded copy of both partitions for every
// modifier, and launches the trainer for each variant, repetition and
// parameter combination.
//
// Output layout:
//
//	<dest>/{train,val}<seed>/                    partitions
//	<dest>/{train,val}<seed>#<modifier>/         degraded partitions
//	<output>/<experiment>/<seed>/<variant>/<rep>-<grid index>/
//
// The variant of the undegraded partitions is "reference".
package experiment
