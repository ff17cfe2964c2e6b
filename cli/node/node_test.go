// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package node

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli/command"
	"github.com/spf13/cobra"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const profile = `identities:
  ops:
    user: ops
    key-file: /keys/ops
  bastion:
    user: jumper
    password-env: KCAP_TEST_JUMP_PASSWORD
jumps:
  bastion:
    host: bastion.example.org
    port: 2222
    identity: bastion
`

// loadProfile loads the configuration profile the same way the kcap root
// command does.
func loadProfile(yaml string) {
	name := filepath.Join(GinkgoT().TempDir(), "config.yaml")
	Expect(os.WriteFile(name, []byte(yaml), 0600)).To(Succeed())
	cmd := &cobra.Command{Use: "kcap"}
	command.ConfigSetupCLI(cmd)
	Expect(cmd.ParseFlags([]string{"--config", name})).To(Succeed())
	Expect(command.ConfigBeforeCommand(cmd)).To(Succeed())
}

var _ = Describe("node plugin", func() {

	BeforeEach(func() {
		Node, SSHUser, SSHPort = "", "", kcap.DefaultSSHPort
		Identity, IdentityFile, PassphraseEnv, PasswordEnv = "", "", "", ""
		Agent, Jumps = false, nil
		KnownHosts, InsecureIgnoreHostKey = "", false
		GinkgoT().Setenv("SSH_AUTH_SOCK", "")
	})

	It("leaves the target parameters alone without a node", func() {
		params := kcap.TargetParams{Pod: "web"}
		Expect(NodeTargetParams(&params)).To(Succeed())
		Expect(params).To(Equal(kcap.TargetParams{Pod: "web"}))
	})

	It("fills in the node from the flags", func() {
		Node = "worker-1"
		SSHUser = "root"
		SSHPort = 2200
		IdentityFile = "/keys/root"
		PassphraseEnv = "KCAP_TEST_PASSPHRASE"
		GinkgoT().Setenv("KCAP_TEST_PASSPHRASE", "pa55")
		params := kcap.TargetParams{}
		Expect(NodeTargetParams(&params)).To(Succeed())
		Expect(params).To(Equal(kcap.TargetParams{
			Node: kcap.Endpoint{
				Host: "worker-1", Port: 2200, User: "root",
				Auth: kcap.Auth{KeyFile: "/keys/root", Passphrase: "pa55"},
			},
		}))
	})

	It("uses configured identities and jump hosts", func() {
		loadProfile(profile)
		GinkgoT().Setenv("KCAP_TEST_JUMP_PASSWORD", "s3cr3t")
		Node = "worker-1:22"
		Identity = "ops"
		Jumps = []string{"bastion", "admin@[fe80::1]:2022"}
		params := kcap.TargetParams{}
		Expect(NodeTargetParams(&params)).To(Succeed())
		ops := kcap.Auth{KeyFile: "/keys/ops"}
		Expect(params.Node).To(Equal(kcap.Endpoint{Host: "worker-1", Port: 22, User: "ops", Auth: ops}))
		Expect(params.Jumps).To(Equal(kcap.JumpPath{
			{Host: "bastion.example.org", Port: 2222, User: "jumper", Auth: kcap.Auth{Password: "s3cr3t"}},
			{Host: "fe80::1", Port: 2022, User: "admin", Auth: ops},
		}))
	})

	It("falls back to the ssh-agent", func() {
		GinkgoT().Setenv("SSH_AUTH_SOCK", "/tmp/agent.sock")
		Node = "ops@worker-1"
		params := kcap.TargetParams{}
		Expect(NodeTargetParams(&params)).To(Succeed())
		Expect(params.Node.Auth).To(Equal(kcap.Auth{Agent: true}))
	})

	It("rejects invalid nodes and missing secrets", func() {
		Node = "ops@"
		params := kcap.TargetParams{}
		err := NodeTargetParams(&params)
		var targetErr *kcap.InvalidTargetError
		Expect(errors.As(err, &targetErr)).To(BeTrue())

		Node = "worker-1"
		Jumps = []string{"bastion:http"}
		Expect(errors.As(NodeTargetParams(&params), &targetErr)).To(BeTrue())

		Jumps = nil
		PasswordEnv = "KCAP_TEST_NOT_SET"
		os.Unsetenv("KCAP_TEST_NOT_SET")
		Expect(NodeTargetParams(&params)).To(MatchError(ContainSubstring("KCAP_TEST_NOT_SET")))
	})

	It("only connects node targets", func() {
		exec, err := ConnectNode(context.Background(), kcap.OrchestratorExec{Namespace: "default", Pod: "web"})
		Expect(err).NotTo(HaveOccurred())
		Expect(exec).To(BeNil())
	})

	It("reports failing to connect to the node", func() {
		InsecureIgnoreHostKey = true
		_, err := ConnectNode(context.Background(), kcap.ShellChain{
			Final: kcap.Endpoint{Host: "127.0.0.1", Port: 1, User: "ops", Auth: kcap.Auth{Password: "x"}},
		})
		var connErr *kcap.ConnectError
		Expect(errors.As(err, &connErr)).To(BeTrue())
		Expect(connErr.Stage).To(Equal(kcap.StageConnect))
		Expect(connErr.HopIndex).To(Equal(0))
		Expect(kcap.ExitCode(err)).To(Equal(kcap.ExitConnect))
	})

})
