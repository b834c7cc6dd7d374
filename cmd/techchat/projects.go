package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"techpaint/internal/models"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Browse and share projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the project feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		projects, err := rest.Projects(cmd.Context())
		if err != nil {
			return checkAuth(err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet")
			return nil
		}
		for _, p := range projects {
			printProject(p)
		}
		return nil
	},
}

func printProject(p models.Project) {
	mine := ""
	switch p.UserVote {
	case models.VoteLike:
		mine = " (you liked)"
	case models.VoteDislike:
		mine = " (you disliked)"
	}
	fmt.Printf("#%d %s\n", p.ID, p.Title)
	fmt.Printf("   by %s · %s\n", p.UserName, p.UserArea)
	if p.Technologies != "" {
		fmt.Printf("   %s\n", p.Technologies)
	}
	fmt.Printf("   %s\n", p.GitHubURL)
	if p.Description != "" {
		fmt.Printf("   %s\n", strings.ReplaceAll(truncate(p.Description, 200), "\n", "\n   "))
	}
	fmt.Printf("   +%d / -%d%s\n\n", p.Likes, p.Dislikes, mine)
}

var (
	flagTitle        string
	flagDescription  string
	flagRepo         string
	flagTechnologies string
)

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Share a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		p, err := rest.CreateProject(cmd.Context(), models.CreateProjectRequest{
			Title:        flagTitle,
			Description:  flagDescription,
			GitHubURL:    flagRepo,
			Technologies: flagTechnologies,
		})
		if err != nil {
			return checkAuth(err)
		}
		fmt.Printf("Project #%d created\n", p.ID)
		return nil
	},
}

func parseProjectID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}
	return id, nil
}

var projectsVoteCmd = &cobra.Command{
	Use:       "vote <id> <like|dislike>",
	Short:     "Toggle a vote on a project",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(models.VoteLike), string(models.VoteDislike)},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		result, err := rest.Vote(cmd.Context(), id, models.VoteType(strings.ToLower(args[1])))
		if err != nil {
			return checkAuth(err)
		}
		vote := "none"
		if result.UserVote != "" {
			vote = string(result.UserVote)
		}
		fmt.Printf("+%d / -%d, your vote: %s\n", result.Likes, result.Dislikes, vote)
		return nil
	},
}

var projectsCommentsCmd = &cobra.Command{
	Use:   "comments <id>",
	Short: "Show comments on a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		comments, err := rest.Comments(cmd.Context(), id)
		if err != nil {
			return checkAuth(err)
		}
		if len(comments) == 0 {
			fmt.Println("No comments yet")
		}
		for _, c := range comments {
			fmt.Printf("[%s] %s: %s\n", clock(c.CreatedAt), c.UserName, c.Text)
		}
		return nil
	},
}

var projectsCommentCmd = &cobra.Command{
	Use:   "comment <id> <text>",
	Short: "Comment on a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		c, err := rest.AddComment(cmd.Context(), id, strings.Join(args[1:], " "))
		if err != nil {
			return checkAuth(err)
		}
		fmt.Printf("Comment #%d added\n", c.ID)
		return nil
	},
}

func init() {
	f := projectsCreateCmd.Flags()
	f.StringVar(&flagTitle, "title", "", "project title")
	f.StringVar(&flagDescription, "description", "", "description (markdown)")
	f.StringVar(&flagRepo, "repo", "", "repository URL")
	f.StringVar(&flagTechnologies, "tech", "", "technologies, comma separated")
	_ = projectsCreateCmd.MarkFlagRequired("title")
	_ = projectsCreateCmd.MarkFlagRequired("repo")

	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsVoteCmd, projectsCommentsCmd, projectsCommentCmd)
}
