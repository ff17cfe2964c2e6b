/*
Package node is the kcap CLI plugin for capturing on nodes reached via SSH,
optionally passing through a chain of jump hosts. It contributes the --node
and --jump flags, as well as the SSH credential and host key flags.
*/
package node
