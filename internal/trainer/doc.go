// Package trainer launches the external training script for one
// train/validation dataset pair.
//
// The script is invoked as
//
//	<interpreter> <script> --trainds <train> [--valds <val>] --outputpath <out> [--<key> <value> ...]
//
// with extra parameters in key order. The parent environment is passed
// through with CUDA_VISIBLE_DEVICES and PYTHON_INTERPRETER set. The command
// line is recorded in <out>/wrapper.log and the script output in
// <out>/train.log. Only the exit status is interpreted.
package trainer
