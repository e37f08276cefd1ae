// Package dataset holds the on-disk vocabulary shared by the partition
// generator, the degradation modifiers and the experiment driver: corpus
// layout, dataset descriptors and the typed errors callers match on.
//
// A corpus is a directory pair:
//
//	<root>/images/<base><image_ext>
//	<root>/labels/<base><label_ext>
//
// Every label has exactly one image sharing its base name. Only the top
// level of images/ and labels/ is considered.
package dataset
